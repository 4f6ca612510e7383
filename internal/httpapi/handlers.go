// Package httpapi exposes the back-office HTTP API and the gRPC health
// service.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"ayrene.com/backoffice/internal/audit"
	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/config"
	"ayrene.com/backoffice/internal/messaging"
	"ayrene.com/backoffice/internal/obs"
	"ayrene.com/backoffice/internal/policy"
)

const timeLayout = time.RFC3339Nano

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks readiness by pinging the store.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.Store.Ping(ctx)
}

// Deps are the collaborators the API is built from.
type Deps struct {
	Config   *config.Config
	Store    auth.Store
	Accounts *auth.Service
	Gate     *auth.Authenticator
	Messages *messaging.Service
	Policy   *policy.Enforcer
	Audit    *audit.Recorder
	Ready    ReadyProbe
	Version  string
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	cfg      *config.Config
	store    auth.Store
	accounts *auth.Service
	gate     *auth.Authenticator
	messages *messaging.Service
	policy   *policy.Enforcer
	recorder *audit.Recorder
	ready    ReadyProbe
	proxies  TrustedProxies
	version  string
}

// New builds the API and its routes.
func New(d Deps) (*API, error) {
	switch {
	case d.Config == nil:
		return nil, errors.New("httpapi: config is required")
	case d.Store == nil, d.Accounts == nil, d.Gate == nil, d.Messages == nil, d.Audit == nil:
		return nil, errors.New("httpapi: store, accounts, gate, messages and audit are required")
	case d.Config.PolicyEnabled && d.Policy == nil:
		return nil, errors.New("httpapi: policy enforcer is required when policy is enabled")
	}
	proxies, err := ParseTrustedProxies(d.Config.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("httpapi: %w", err)
	}
	a := &API{
		proxies:  proxies,
		router:   mux.NewRouter(),
		cfg:      d.Config,
		store:    d.Store,
		accounts: d.Accounts,
		gate:     d.Gate,
		messages: d.Messages,
		policy:   d.Policy,
		recorder: d.Audit,
		ready:    d.Ready,
		version:  d.Version,
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.HandleFunc("/", a.Root).Methods(http.MethodGet)
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/auth/login",
		RateLimit(http.HandlerFunc(a.Login), a.cfg.Auth.LoginRateBurst, a.cfg.Auth.LoginRatePerSec, a.proxies),
	).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(a.requireAuth, RequireRole(adminOnlyMessage, auth.RoleAdmin))
	admin.HandleFunc("/dashboard", a.AdminDashboard).Methods(http.MethodGet)
	admin.HandleFunc("/users", a.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users", a.CreateUser).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id}", a.GetUser).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", a.UpdateUser).Methods(http.MethodPut)
	admin.HandleFunc("/users/{id}", a.DeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/teams", a.ListTeamsWithMembers).Methods(http.MethodGet)
	admin.HandleFunc("/teams", a.CreateTeam).Methods(http.MethodPost)
	admin.HandleFunc("/teams/{id}", a.UpdateTeam).Methods(http.MethodPut)
	admin.HandleFunc("/teams/{id}", a.DeleteTeam).Methods(http.MethodDelete)
	admin.HandleFunc("/messages", a.ListAllMessages).Methods(http.MethodGet)
	admin.HandleFunc("/messages", a.SendMessage).Methods(http.MethodPost)
	admin.HandleFunc("/audit", a.ListAudit).Methods(http.MethodGet)
	admin.HandleFunc("/audit/activity", a.Activity).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(a.requireAuth)
	authed.HandleFunc("/auth/me", a.Me).Methods(http.MethodGet)
	authed.HandleFunc("/messages", a.CreateMessage).Methods(http.MethodPost)
	authed.HandleFunc("/messages", a.ListMessages).Methods(http.MethodGet)
	authed.HandleFunc("/user/dashboard", a.UserDashboard).Methods(http.MethodGet)
	authed.HandleFunc("/user/messages", a.UserMessages).Methods(http.MethodGet)
	authed.HandleFunc("/users/dashboard", a.UsersDashboard).Methods(http.MethodGet)
	authed.HandleFunc("/reporting/messages", a.ReportingMessages).Methods(http.MethodGet)
	authed.HandleFunc("/teams", a.ListTeams).Methods(http.MethodGet)
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = CORS(a.cfg.CORS)(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = Recover(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- operational handlers ---

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "API is running...")
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{"error": msg}
	if rid := RequestIDFromContext(r); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// internalError logs err and answers 500 with a generic message.
func internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	obs.WithContext(r.Context()).WithError(err).
		WithField("request_id", RequestIDFromContext(r)).
		WithField("path", r.URL.Path).
		Error(msg)
	writeError(w, r, http.StatusInternalServerError, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if v < min || v > max {
		return 0, fmt.Errorf("must be between %d and %d", min, max)
	}
	return v, nil
}

func noStore(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}
