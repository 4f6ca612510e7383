package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"ayrene.com/backoffice/internal/audit"
	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/messaging"
)

const activityLimit = 50

func isNotFound(err error) bool { return errors.Is(err, auth.ErrNotFound) }

// AdminDashboard returns record counts.
func (a *API) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := a.store.Users().Count(ctx)
	if err != nil {
		internalError(w, r, err, "Failed to load dashboard")
		return
	}
	messages, err := a.messages.Count(ctx, messaging.Filter{})
	if err != nil {
		internalError(w, r, err, "Failed to load dashboard")
		return
	}
	teams, err := a.store.Teams().Count(ctx)
	if err != nil {
		internalError(w, r, err, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"totalUsers":    users,
		"totalMessages": messages,
		"totalTeams":    teams,
	})
}

// --- users ---

func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.store.Users().List(r.Context(), auth.UserFilter{TeamID: r.URL.Query().Get("team_id")})
	if err != nil {
		internalError(w, r, err, "Failed to fetch users")
		return
	}
	dir := newDirectory(a.store)
	out := make([]userView, 0, len(users))
	for _, u := range users {
		v, err := dir.userView(r.Context(), u)
		if err != nil {
			internalError(w, r, err, "Failed to fetch users")
			return
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.Users().Find(r.Context(), mux.Vars(r)["id"])
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Failed to fetch user")
		return
	}
	v, err := newDirectory(a.store).userView(r.Context(), u)
	if err != nil {
		internalError(w, r, err, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Team     string `json:"team"`
}

// assignableRole maps a requested role onto the configured assignable set,
// falling back to the default role.
func (a *API) assignableRole(raw string) auth.Role {
	raw = strings.TrimSpace(raw)
	for _, allowed := range a.cfg.Auth.AssignableRoles {
		if raw == allowed {
			return auth.Role(raw)
		}
	}
	return auth.Role(a.cfg.Auth.DefaultRole)
}

func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "Missing required fields")
		return
	}
	ctx := r.Context()
	if req.Team = strings.TrimSpace(req.Team); req.Team != "" {
		if _, err := a.store.Teams().Find(ctx, req.Team); isNotFound(err) {
			writeError(w, r, http.StatusBadRequest, "Team not found")
			return
		} else if err != nil {
			internalError(w, r, err, "Failed to create user")
			return
		}
	}

	u, err := a.accounts.CreateUser(ctx, auth.NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     a.assignableRole(req.Role),
		TeamID:   req.Team,
	})
	switch {
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusBadRequest, "Email already exists")
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes))
		return
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "Missing required fields")
		return
	case err != nil:
		internalError(w, r, err, "Failed to create user")
		return
	}

	a.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionCreateUser,
		ActorID:  identity(r).ID,
		TargetID: u.ID,
		Details:  "Created user " + u.Email,
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"user":    u,
	})
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Role     *string `json:"role"`
	Team     *string `json:"team"`
	IsActive *bool   `json:"isActive"`
}

func (a *API) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var (
		upd     auth.UserUpdate
		changes []string
	)
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "Name cannot be empty")
			return
		}
		upd.Name = &name
		changes = append(changes, "name="+name)
	}
	if req.Role != nil {
		role, ok := auth.ParseRole(*req.Role)
		if !ok || a.assignableRole(string(role)) != role {
			writeError(w, r, http.StatusBadRequest, "Invalid role")
			return
		}
		upd.Role = &role
		changes = append(changes, "role="+string(role))
	}
	if req.Team != nil {
		team := strings.TrimSpace(*req.Team)
		upd.TeamID = &team
		changes = append(changes, "team="+team)
	}
	if req.IsActive != nil {
		upd.Active = req.IsActive
		changes = append(changes, fmt.Sprintf("isActive=%t", *req.IsActive))
	}
	if len(changes) == 0 {
		writeError(w, r, http.StatusBadRequest, "No changes supplied")
		return
	}

	ctx := r.Context()
	if upd.TeamID != nil && *upd.TeamID != "" {
		if _, err := a.store.Teams().Find(ctx, *upd.TeamID); isNotFound(err) {
			writeError(w, r, http.StatusBadRequest, "Team not found")
			return
		} else if err != nil {
			internalError(w, r, err, "Failed to update user")
			return
		}
	}
	u, err := a.store.Users().Update(ctx, mux.Vars(r)["id"], upd)
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Failed to update user")
		return
	}

	a.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionUpdateUser,
		ActorID:  identity(r).ID,
		TargetID: u.ID,
		Details:  fmt.Sprintf("Set %s for %s", strings.Join(changes, ", "), u.Email),
	})
	v, err := newDirectory(a.store).userView(ctx, u)
	if err != nil {
		internalError(w, r, err, "Failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	u, err := a.store.Users().Find(ctx, id)
	if err == nil {
		err = a.store.Users().Delete(ctx, id)
	}
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Failed to delete user")
		return
	}
	a.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionDeleteUser,
		ActorID:  identity(r).ID,
		TargetID: u.ID,
		Details:  "Deleted user " + u.Email,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted successfully"})
}

// --- teams ---

func (a *API) ListTeamsWithMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teams, err := a.store.Teams().List(ctx)
	if err != nil {
		internalError(w, r, err, "Failed to fetch teams")
		return
	}
	users, err := a.store.Users().List(ctx, auth.UserFilter{})
	if err != nil {
		internalError(w, r, err, "Failed to fetch teams")
		return
	}
	members := make(map[string][]userRef)
	for _, u := range users {
		if u.TeamID != "" {
			members[u.TeamID] = append(members[u.TeamID], *refOf(u))
		}
	}
	out := make([]teamView, 0, len(teams))
	for _, t := range teams {
		m := members[t.ID]
		if m == nil {
			m = []userRef{}
		}
		out = append(out, teamView{Team: t, Users: m})
	}
	writeJSON(w, http.StatusOK, out)
}

type teamRequest struct {
	Name         *string   `json:"name"`
	Organisation *string   `json:"organisation"`
	AllowedModes *[]string `json:"allowed_modes"`
}

func (a *API) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		writeError(w, r, http.StatusBadRequest, "Team name is required")
		return
	}
	t := &auth.Team{Name: strings.TrimSpace(*req.Name)}
	if req.Organisation != nil {
		t.Organisation = strings.TrimSpace(*req.Organisation)
	}
	if req.AllowedModes != nil {
		t.AllowedModes = cleanModes(*req.AllowedModes)
	}
	ctx := r.Context()
	if err := a.store.Teams().Create(ctx, t); err != nil {
		if errors.Is(err, auth.ErrConflict) {
			writeError(w, r, http.StatusBadRequest, "Team already exists")
			return
		}
		internalError(w, r, err, "Failed to create team")
		return
	}
	a.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionCreateTeam,
		ActorID:  identity(r).ID,
		TargetID: t.ID,
		Details:  "Created team " + t.Name,
	})
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var upd auth.TeamUpdate
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, r, http.StatusBadRequest, "Team name cannot be empty")
			return
		}
		upd.Name = &name
	}
	if req.Organisation != nil {
		org := strings.TrimSpace(*req.Organisation)
		upd.Organisation = &org
	}
	if req.AllowedModes != nil {
		modes := cleanModes(*req.AllowedModes)
		upd.AllowedModes = &modes
	}

	ctx := r.Context()
	t, err := a.store.Teams().Update(ctx, mux.Vars(r)["id"], upd)
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "Team not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Failed to update team")
		return
	}
	a.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionUpdateTeam,
		ActorID:  identity(r).ID,
		TargetID: t.ID,
		Details:  "Updated team " + t.Name,
	})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]
	t, err := a.store.Teams().Find(ctx, id)
	if err == nil {
		err = a.store.Teams().Delete(ctx, id)
	}
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "Team not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Failed to delete team")
		return
	}
	a.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionDeleteTeam,
		ActorID:  identity(r).ID,
		TargetID: t.ID,
		Details:  "Deleted team " + t.Name,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Team deleted successfully"})
}

func cleanModes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// --- messages ---

func (a *API) ListAllMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.messages.List(r.Context(), messaging.Filter{})
	if err != nil {
		internalError(w, r, err, "Failed to fetch messages")
		return
	}
	out, err := newDirectory(a.store).messageViews(r.Context(), msgs)
	if err != nil {
		internalError(w, r, err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type adminMessageRequest struct {
	UserID           string `json:"userId"`
	Text             string `json:"text"`
	OriginalText     string `json:"original_text"`
	ProcessedText    string `json:"processed_text"`
	AIMode           string `json:"ai_mode"`
	DetectedLanguage string `json:"detected_language"`
}

// SendMessage records a message on behalf of a user.
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req adminMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	text := req.OriginalText
	if strings.TrimSpace(text) == "" {
		text = req.Text
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(text) == "" {
		writeError(w, r, http.StatusBadRequest, "userId and message text are required")
		return
	}

	ctx := r.Context()
	recipient, err := a.store.Users().Find(ctx, req.UserID)
	if isNotFound(err) {
		writeError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		internalError(w, r, err, "Failed to send message")
		return
	}
	m, err := a.messages.Send(ctx, recipient, messaging.AdminDraft{
		Text:             text,
		ProcessedText:    req.ProcessedText,
		Mode:             req.AIMode,
		DetectedLanguage: req.DetectedLanguage,
	})
	if err != nil {
		internalError(w, r, err, "Failed to send message")
		return
	}
	a.recorder.Record(ctx, audit.Entry{
		Action:   audit.ActionAdminMessageCreated,
		ActorID:  identity(r).ID,
		TargetID: recipient.ID,
		Metadata: map[string]any{"messageId": m.ID},
	})
	writeJSON(w, http.StatusCreated, m)
}

// --- audit ---

func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parsePositiveInt(q.Get("limit"), 200, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit "+err.Error())
		return
	}
	entries, err := a.store.Audit().List(r.Context(), auth.AuditFilter{
		TargetID: q.Get("target_id"),
		Action:   q.Get("action"),
		Limit:    limit,
	})
	if err != nil {
		internalError(w, r, err, "Failed to fetch audit logs")
		return
	}
	out, err := newDirectory(a.store).auditViews(r.Context(), entries)
	if err != nil {
		internalError(w, r, err, "Failed to fetch audit logs")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type creationView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	CreatedAt string    `json:"createdAt"`
}

type loginView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	LastLogin string `json:"lastLogin"`
}

// Activity summarises account creations, recent messages and logins.
func (a *API) Activity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := a.store.Users().List(ctx, auth.UserFilter{})
	if err != nil {
		internalError(w, r, err, "Failed to fetch audit logs")
		return
	}
	creations := make([]creationView, 0, len(users))
	for _, u := range users {
		creations = append(creations, creationView{
			ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role,
			CreatedAt: u.CreatedAt.UTC().Format(timeLayout),
		})
	}

	msgs, err := a.messages.List(ctx, messaging.Filter{Limit: activityLimit})
	if err != nil {
		internalError(w, r, err, "Failed to fetch audit logs")
		return
	}
	msgViews, err := newDirectory(a.store).messageViews(ctx, msgs)
	if err != nil {
		internalError(w, r, err, "Failed to fetch audit logs")
		return
	}

	recent, err := a.store.Users().List(ctx, auth.UserFilter{LoggedIn: true, Limit: activityLimit})
	if err != nil {
		internalError(w, r, err, "Failed to fetch audit logs")
		return
	}
	logins := make([]loginView, 0, len(recent))
	for _, u := range recent {
		v := loginView{ID: u.ID, Name: u.Name, Email: u.Email}
		if u.LastLogin != nil {
			v.LastLogin = u.LastLogin.UTC().Format(timeLayout)
		}
		logins = append(logins, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userCreations": creations,
		"messages":      msgViews,
		"logins":        logins,
	})
}
