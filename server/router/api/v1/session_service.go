package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/store"
)

// Session is the wire form of a conversation session.
type Session struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	GuildID    string                 `json:"guild_id"`
	ChannelID  string                 `json:"channel_id,omitempty"`
	Status     store.SessionStatus    `json:"status"`
	Messages   []store.SessionMessage `json:"messages"`
	Summary    string                 `json:"summary,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	ClosedAt   *time.Time             `json:"closed_at,omitempty"`
	ArchivedAt *time.Time             `json:"archived_at,omitempty"`
}

func convertSession(s *store.Session) *Session {
	messages := s.Messages
	if messages == nil {
		messages = []store.SessionMessage{}
	}
	return &Session{
		ID:         s.ID,
		UserID:     s.UserID,
		GuildID:    s.GuildID,
		ChannelID:  s.ChannelID,
		Status:     s.Status,
		Messages:   messages,
		Summary:    s.Summary,
		CreatedAt:  s.CreatedAt,
		ClosedAt:   s.ClosedAt,
		ArchivedAt: s.ArchivedAt,
	}
}

// OpenSessionRequest starts a conversation.
type OpenSessionRequest struct {
	ScopeRequest
	ChannelID string `json:"channel_id"`
}

// OpenSession starts a new session.
// POST /api/v1/memory/sessions
func (s *APIV1Service) OpenSession(c echo.Context) error {
	var req OpenSessionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req.ScopeRequest); err != nil {
		return err
	}
	created, err := s.Sessions.OpenSession(c.Request().Context(), req.UserID, req.GuildID, req.ChannelID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, convertSession(created))
}

// GetSession returns a session with its messages.
// GET /api/v1/memory/sessions/:id
func (s *APIV1Service) GetSession(c echo.Context) error {
	found, err := s.Sessions.GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, convertSession(found))
}

// AppendMessageRequest records one turn.
type AppendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AppendMessage records one turn on an open session.
// POST /api/v1/memory/sessions/:id/messages
func (s *APIV1Service) AppendMessage(c echo.Context) error {
	var req AppendMessageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Role) == "" || strings.TrimSpace(req.Content) == "" {
		return badRequest("role and content are required")
	}
	err := s.Sessions.AppendMessage(c.Request().Context(), c.Param("id"), store.SessionMessage{
		Role:    req.Role,
		Content: req.Content,
	})
	if err != nil {
		return err
	}
	return ok(c, true)
}

// CloseSessionRequest carries the summary written at close.
type CloseSessionRequest struct {
	Summary string `json:"summary"`
}

// CloseSession closes a session. Enrichment runs in the background.
// POST /api/v1/memory/sessions/:id/close
func (s *APIV1Service) CloseSession(c echo.Context) error {
	var req CloseSessionRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := s.Sessions.CloseSession(c.Request().Context(), c.Param("id"), req.Summary); err != nil {
		return err
	}
	return ok(c, true)
}
