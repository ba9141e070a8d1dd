package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/plugin/ai/narrative"
	"github.com/hrygo/guildmind/store"
)

// SharedNarrative is the wire form of a narrative.
type SharedNarrative struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	GuildID   string     `json:"guild_id"`
	Memory    string     `json:"memory"`
	Tone      string     `json:"tone,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Deletable bool       `json:"deletable"`
}

func convertNarrative(n *store.SharedNarrative) *SharedNarrative {
	return &SharedNarrative{
		ID:        n.ID,
		UserID:    n.UserID,
		GuildID:   n.GuildID,
		Memory:    n.Memory,
		Tone:      n.Tone,
		CreatedAt: n.CreatedAt,
		ExpiresAt: n.ExpiresAt,
		Deletable: n.Deletable,
	}
}

// AddSharedNarrativeRequest stores a warm memory.
type AddSharedNarrativeRequest struct {
	ScopeRequest
	Memory         string `json:"memory"`
	Tone           string `json:"tone"`
	AutoExpireDays int    `json:"auto_expire_days"`
}

// AddSharedNarrative stores a narrative.
// POST /api/v1/memory/narratives
func (s *APIV1Service) AddSharedNarrative(c echo.Context) error {
	var req AddSharedNarrativeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req.ScopeRequest); err != nil {
		return err
	}
	if req.AutoExpireDays < 0 {
		return badRequest("auto_expire_days must not be negative")
	}
	created, err := s.Narratives.Create(c.Request().Context(), &narrative.Create{
		UserID:         req.UserID,
		GuildID:        req.GuildID,
		Memory:         req.Memory,
		Tone:           req.Tone,
		AutoExpireDays: req.AutoExpireDays,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, convertNarrative(created))
}

// ListSharedNarrativesResponse lists unexpired narratives, oldest first.
type ListSharedNarrativesResponse struct {
	Narratives []*SharedNarrative `json:"narratives"`
}

// GetSharedNarratives lists the unexpired narratives of a scope.
// GET /api/v1/memory/narratives?user_id=&guild_id=&limit=
func (s *APIV1Service) GetSharedNarratives(c echo.Context) error {
	req, err := queryScope(c)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	list, err := s.Narratives.GetSharedNarratives(c.Request().Context(), req.UserID, req.GuildID, limit)
	if err != nil {
		return err
	}
	resp := ListSharedNarrativesResponse{Narratives: make([]*SharedNarrative, 0, len(list))}
	for _, n := range list {
		resp.Narratives = append(resp.Narratives, convertNarrative(n))
	}
	return c.JSON(http.StatusOK, resp)
}

// DeleteSharedNarrative deletes deletable narratives by exact text.
// guild_id is optional; without it every guild of the user matches.
// DELETE /api/v1/memory/narratives?user_id=&guild_id=&memory=
func (s *APIV1Service) DeleteSharedNarrative(c echo.Context) error {
	userID := strings.TrimSpace(c.QueryParam("user_id"))
	guildID := strings.TrimSpace(c.QueryParam("guild_id"))
	memory := c.QueryParam("memory")
	if userID == "" || strings.TrimSpace(memory) == "" {
		return badRequest("user_id and memory are required")
	}
	scope(c, userID, guildID)
	return ok(c, s.Narratives.DeleteSharedNarrative(c.Request().Context(), userID, guildID, memory))
}
