package httpapi

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/obs"
)

const (
	authHeader       = "Authorization"
	adminOnlyMessage = "Admin access only"
)

// requireAuth resolves the bearer token to an Identity or answers 401.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(authHeader)
		id, err := a.gate.Authenticate(r.Context(), header)
		if err != nil {
			rejectUnauthenticated(w, r, err)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), id)
		if token, err := auth.BearerToken(header); err == nil {
			ctx = auth.ContextWithToken(ctx, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func rejectUnauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	reason, message := "unknown", "Authentication failed"
	var f *auth.Failure
	if errors.As(err, &f) {
		reason, message = string(f.Reason), f.Message
	}
	obs.AuthFailures.WithLabelValues(reason).Inc()

	entry := obs.WithContext(r.Context()).WithFields(logrus.Fields{
		"request_id": RequestIDFromContext(r),
		"reason":     reason,
		"path":       r.URL.Path,
	})
	if reason == string(auth.ReasonLookupFailed) {
		entry.WithError(err).Error("authentication lookup failed")
	} else {
		entry.Info("authentication rejected")
	}

	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	writeError(w, r, http.StatusUnauthorized, message)
}

// RequireRole admits only identities holding one of roles. A missing
// identity gets 401, any other role gets 403 with forbidden as the message.
func RequireRole(forbidden string, roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, _ := auth.IdentityFromContext(r.Context())
			switch err := auth.Authorize(id, roles...); {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, auth.ErrRoleDenied):
				obs.WithContext(r.Context()).WithFields(logrus.Fields{
					"request_id": RequestIDFromContext(r),
					"user_id":    id.ID,
					"role":       id.Role,
					"path":       r.URL.Path,
				}).Info("role denied")
				writeError(w, r, http.StatusForbidden, forbidden)
			default:
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				writeError(w, r, http.StatusUnauthorized, err.Error())
			}
		})
	}
}

func identity(r *http.Request) auth.Identity {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return auth.Identity{}
	}
	return *id
}
