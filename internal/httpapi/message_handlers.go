package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/messaging"
)

type createMessageRequest struct {
	OriginalText string `json:"original_text"`
	AIMode       string `json:"ai_mode"`
	SessionID    string `json:"session_id"`
}

// CreateMessage checks the team mode policy, then annotates and stores the
// caller's message.
func (a *API) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.OriginalText) == "" {
		writeError(w, r, http.StatusBadRequest, "Message text required")
		return
	}

	ctx := r.Context()
	caller := identity(r)
	if a.cfg.PolicyEnabled {
		if d := a.policy.Enforce(ctx, caller, strings.TrimSpace(req.AIMode)); d.Blocks() {
			writeError(w, r, http.StatusForbidden, d.Message)
			return
		}
	}

	m, err := a.messages.Ingest(ctx, caller, messaging.Draft{
		Text:      req.OriginalText,
		Mode:      req.AIMode,
		SessionID: req.SessionID,
	})
	if errors.Is(err, messaging.ErrEmptyText) {
		writeError(w, r, http.StatusBadRequest, "Message text required")
		return
	}
	if err != nil {
		internalError(w, r, err, "Message processing failed")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMessages lists messages visible to the caller.
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := messaging.VisibleTo(identity(r), q.Get("user_id"), q.Get("team_id"))
	msgs, err := a.messages.List(r.Context(), f)
	if err != nil {
		internalError(w, r, err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

type dashboardMessage struct {
	ID               string `json:"id"`
	OriginalText     string `json:"original_text"`
	ProcessedText    string `json:"processed_text"`
	AIMode           string `json:"ai_mode"`
	DetectedLanguage string `json:"detected_language"`
	SessionID        string `json:"session_id,omitempty"`
	Timestamp        string `json:"timestamp"`
}

func summarize(msgs []*messaging.Message) []dashboardMessage {
	out := make([]dashboardMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, dashboardMessage{
			ID:               m.ID,
			OriginalText:     m.OriginalText,
			ProcessedText:    m.ProcessedText,
			AIMode:           m.AIMode,
			DetectedLanguage: m.DetectedLanguage,
			SessionID:        m.SessionID,
			Timestamp:        m.Timestamp.UTC().Format(timeLayout),
		})
	}
	return out
}

type profileView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	Team      *teamRef  `json:"team"`
	CreatedAt string    `json:"createdAt"`
}

// UserDashboard returns the caller's profile, message stats, recent
// messages and the admin actions that targeted them.
func (a *API) UserDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := identity(r)
	u, err := a.store.Users().Find(ctx, caller.ID)
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Unable to load dashboard")
		return
	}
	dir := newDirectory(a.store)
	profile := profileView{
		ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role,
		CreatedAt: u.CreatedAt.UTC().Format(timeLayout),
	}
	team, err := dir.team(ctx, u.TeamID)
	if err != nil {
		internalError(w, r, err, "Unable to load dashboard")
		return
	}
	if team != nil {
		profile.Team = &teamRef{ID: team.ID, Name: team.Name}
	}

	own := messaging.Filter{UserID: u.ID}
	total, err := a.messages.Count(ctx, own)
	if err != nil {
		internalError(w, r, err, "Unable to load dashboard")
		return
	}
	own.Limit = 5
	recent, err := a.messages.List(ctx, own)
	if err != nil {
		internalError(w, r, err, "Unable to load dashboard")
		return
	}
	entries, err := a.store.Audit().List(ctx, auth.AuditFilter{TargetID: u.ID, Limit: 5})
	if err != nil {
		internalError(w, r, err, "Unable to load dashboard")
		return
	}
	activities, err := dir.auditViews(ctx, entries)
	if err != nil {
		internalError(w, r, err, "Unable to load dashboard")
		return
	}

	noStore(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":         profile,
		"stats":           map[string]int{"totalMessages": total},
		"recentMessages":  summarize(recent),
		"adminActivities": activities,
	})
}

// UserMessages returns all of the caller's messages.
func (a *API) UserMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.messages.List(r.Context(), messaging.Filter{UserID: identity(r).ID})
	if err != nil {
		internalError(w, r, err, "Failed to fetch messages")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, summarize(msgs))
}

// UsersDashboard is the compact dashboard: profile, stats and the last ten
// messages.
func (a *API) UsersDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := a.store.Users().Find(ctx, identity(r).ID)
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Failed to load user dashboard")
		return
	}
	total, err := a.messages.Count(ctx, messaging.Filter{UserID: u.ID})
	if err != nil {
		internalError(w, r, err, "Failed to load user dashboard")
		return
	}
	msgs, err := a.messages.List(ctx, messaging.Filter{UserID: u.ID, Limit: 10})
	if err != nil {
		internalError(w, r, err, "Failed to load user dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":     refOf(u),
		"stats":    map[string]int{"totalMessages": total},
		"messages": summarize(msgs),
	})
}

// ReportingMessages lists every message, newest first.
func (a *API) ReportingMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.messages.List(r.Context(), messaging.Filter{})
	if err != nil {
		internalError(w, r, err, "Failed to fetch reports")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

// ListTeams lists teams without members.
func (a *API) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.store.Teams().List(r.Context())
	if err != nil {
		internalError(w, r, err, "Failed to fetch teams")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(teams))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
