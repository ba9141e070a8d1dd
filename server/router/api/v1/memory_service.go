package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/guildmind/plugin/ai/facts"
	"github.com/hrygo/guildmind/plugin/ai/pattern"
	"github.com/hrygo/guildmind/store"
)

// ScopeRequest names the profile an operation acts on.
type ScopeRequest struct {
	UserID  string `json:"user_id" query:"user_id"`
	GuildID string `json:"guild_id" query:"guild_id"`
}

func (r *ScopeRequest) validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.GuildID = strings.TrimSpace(r.GuildID)
	if r.UserID == "" || r.GuildID == "" {
		return badRequest("user_id and guild_id are required")
	}
	return nil
}

func bindScope(c echo.Context, req *ScopeRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	scope(c, req.UserID, req.GuildID)
	return nil
}

func queryScope(c echo.Context) (ScopeRequest, error) {
	req := ScopeRequest{UserID: c.QueryParam("user_id"), GuildID: c.QueryParam("guild_id")}
	return req, bindScope(c, &req)
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid " + name + ": " + raw)
	}
	return n, nil
}

// GetEnvelope returns the user's memory envelope.
// GET /api/v1/memory/envelope?user_id=&guild_id=&force_refresh=
func (s *APIV1Service) GetEnvelope(c echo.Context) error {
	req, err := queryScope(c)
	if err != nil {
		return err
	}
	force, _ := strconv.ParseBool(c.QueryParam("force_refresh"))
	env, err := s.Memory.GetEnvelope(c.Request().Context(), req.UserID, req.GuildID, force)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, env)
}

// FormatEnvelopeResponse carries the rendered prompt context.
type FormatEnvelopeResponse struct {
	Context string `json:"context"`
}

// FormatEnvelope renders the envelope as LLM context.
// GET /api/v1/memory/envelope/format?user_id=&guild_id=&max_facts=
func (s *APIV1Service) FormatEnvelope(c echo.Context) error {
	req, err := queryScope(c)
	if err != nil {
		return err
	}
	maxFacts, err := queryInt(c, "max_facts")
	if err != nil {
		return err
	}
	env, err := s.Memory.GetEnvelope(c.Request().Context(), req.UserID, req.GuildID, false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, FormatEnvelopeResponse{Context: s.Memory.FormatEnvelopeForLLM(env, maxFacts)})
}

// InvalidateCache drops the cached envelope.
// POST /api/v1/memory/invalidate
func (s *APIV1Service) InvalidateCache(c echo.Context) error {
	var req ScopeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req); err != nil {
		return err
	}
	if err := s.Memory.InvalidateCache(c.Request().Context(), req.UserID, req.GuildID); err != nil {
		return err
	}
	return ok(c, true)
}

// UpsertProfileRequest refreshes a user's identity.
type UpsertProfileRequest struct {
	ScopeRequest
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
}

// UpsertProfile creates the profile on first contact or refreshes its identity.
// PUT /api/v1/memory/profile
func (s *APIV1Service) UpsertProfile(c echo.Context) error {
	var req UpsertProfileRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req.ScopeRequest); err != nil {
		return err
	}
	return ok(c, s.Memory.UpsertIdentity(c.Request().Context(), req.UserID, req.GuildID, req.Name, req.Nickname))
}

// PurgeProfile deletes the profile with its facts and narratives.
// DELETE /api/v1/memory/profile?user_id=&guild_id=
func (s *APIV1Service) PurgeProfile(c echo.Context) error {
	req, err := queryScope(c)
	if err != nil {
		return err
	}
	return ok(c, s.Memory.PurgeProfile(c.Request().Context(), req.UserID, req.GuildID))
}

// ExtractFactsRequest asks for facts grounded in a session summary.
type ExtractFactsRequest struct {
	UserID  string `json:"user_id"`
	Summary string `json:"summary"`
}

// ExtractFactsResponse lists the accepted candidates.
type ExtractFactsResponse struct {
	Facts []facts.Fact `json:"facts"`
}

// ExtractFacts runs the grounded fact extractor without storing anything.
// POST /api/v1/memory/facts/extract
func (s *APIV1Service) ExtractFacts(c echo.Context) error {
	var req ExtractFactsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.UserID) == "" {
		return badRequest("user_id is required")
	}
	extracted := s.Memory.ExtractFacts(c.Request().Context(), req.Summary, req.UserID)
	if extracted == nil {
		extracted = []facts.Fact{}
	}
	return c.JSON(http.StatusOK, ExtractFactsResponse{Facts: extracted})
}

// AddFactRequest stores one fact.
type AddFactRequest struct {
	ScopeRequest
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
	Source     string  `json:"source"`
}

// AddFact stores a fact on the profile.
// POST /api/v1/memory/facts
func (s *APIV1Service) AddFact(c echo.Context) error {
	var req AddFactRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req.ScopeRequest); err != nil {
		return err
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest("text is required")
	}
	return ok(c, s.Memory.AddFact(c.Request().Context(), req.UserID, req.GuildID, facts.Fact{
		Text:       req.Text,
		Type:       store.FactTypeUserFact,
		Confidence: req.Confidence,
		Category:   req.Category,
		Source:     req.Source,
	}))
}

// ReinforceFactRequest confirms a stored fact.
type ReinforceFactRequest struct {
	ScopeRequest
	FactText string  `json:"fact_text"`
	Boost    float64 `json:"boost"`
}

// ReinforceFact boosts the first fact matching fact_text.
// POST /api/v1/memory/facts/reinforce
func (s *APIV1Service) ReinforceFact(c echo.Context) error {
	var req ReinforceFactRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req.ScopeRequest); err != nil {
		return err
	}
	if req.Boost < 0 || req.Boost > 1 {
		return badRequest("boost must be within [0, 1]")
	}
	return ok(c, s.Memory.ReinforceFact(c.Request().Context(), req.UserID, req.GuildID, req.FactText, req.Boost))
}

// AnalyzePatternsRequest asks for trait proposals from a summary.
type AnalyzePatternsRequest struct {
	ScopeRequest
	Summary string `json:"summary"`
}

// AnalyzePatterns proposes profile updates against the stored profile.
// An empty object means nothing worth proposing.
// POST /api/v1/memory/patterns/analyze
func (s *APIV1Service) AnalyzePatterns(c echo.Context) error {
	var req AnalyzePatternsRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req.ScopeRequest); err != nil {
		return err
	}
	ctx := c.Request().Context()
	existing, err := s.Store.GetUserProfile(ctx, &store.FindUserProfile{UserID: &req.UserID, GuildID: &req.GuildID})
	if err != nil {
		return err
	}
	proposal := s.Memory.AnalyzePatterns(ctx, req.Summary, req.UserID, existing)
	if proposal == nil {
		return c.JSON(http.StatusOK, struct{}{})
	}
	return c.JSON(http.StatusOK, proposal)
}

// ApplyProfileUpdatesRequest commits confirmed traits.
type ApplyProfileUpdatesRequest struct {
	ScopeRequest
	Updates pattern.ProfileUpdates `json:"updates"`
}

// ApplyProfileUpdates merges traits into the profile.
// POST /api/v1/memory/patterns/apply
func (s *APIV1Service) ApplyProfileUpdates(c echo.Context) error {
	var req ApplyProfileUpdatesRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := bindScope(c, &req.ScopeRequest); err != nil {
		return err
	}
	return ok(c, s.Memory.ApplyProfileUpdates(c.Request().Context(), req.UserID, req.GuildID, req.Updates))
}
