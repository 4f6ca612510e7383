package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/store/memory"
)

type failingFinder struct{ err error }

func (f failingFinder) Find(context.Context, string) (*auth.User, error) { return nil, f.err }

func newAuthenticator(t *testing.T) (*auth.Authenticator, *auth.TokenService, *memory.Store) {
	t.Helper()
	tokens, err := auth.NewTokenService("gate-secret")
	require.NoError(t, err)
	st := memory.New()
	return auth.NewAuthenticator(tokens, st.Users()), tokens, st
}

func TestAuthenticateFailureTaxonomy(t *testing.T) {
	a, tokens, _ := newAuthenticator(t)
	ghostToken, _, err := tokens.Issue("01HZZZZZZZZZZZZZZZZZZZZZZZ", auth.RoleAdmin)
	require.NoError(t, err)

	cases := []struct {
		name    string
		header  string
		want    *auth.Failure
		message string
	}{
		{"absent", "", auth.ErrMissingHeader, "Authorization header missing"},
		{"other scheme", "Token abc", auth.ErrBadScheme, "Authorization format must be Bearer <token>"},
		{"lower-case scheme", "bearer abc", auth.ErrBadScheme, "Authorization format must be Bearer <token>"},
		{"scheme glued", "Bearerabc", auth.ErrBadScheme, "Authorization format must be Bearer <token>"},
		{"scheme only", "Bearer ", auth.ErrMissingToken, "Token not found"},
		{"double space", "Bearer  " + ghostToken, auth.ErrMissingToken, "Token not found"},
		{"scheme only trimmed", "Bearer", auth.ErrMissingToken, "Token not found"},
		{"garbage", "Bearer not-a-jwt", auth.ErrMalformed, "Invalid authentication token"},
		{"unknown subject", "Bearer " + ghostToken, auth.ErrUnknownSubject, "User not found for this token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Authenticate(context.Background(), tc.header)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, tc.message, err.Error())

			var f *auth.Failure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, tc.want.Reason, f.Reason)
		})
	}
}

func TestAuthenticateExpired(t *testing.T) {
	issued := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	old, err := auth.NewTokenService("gate-secret", auth.WithClock(func() time.Time { return issued }))
	require.NoError(t, err)
	token, _, err := old.Issue("user-1", auth.RoleUser)
	require.NoError(t, err)

	a, _, _ := newAuthenticator(t)
	_, err = a.Authenticate(context.Background(), "Bearer "+token)
	assert.ErrorIs(t, err, auth.ErrExpired)
	assert.Equal(t, "Token expired, please login again", err.Error())
}

func TestAuthenticateResolvesLiveRecord(t *testing.T) {
	a, tokens, st := newAuthenticator(t)
	ctx := context.Background()
	u := &auth.User{Name: "Ann", Email: "ann@example.com", Role: auth.RoleAdmin, TeamID: "team-1", Active: true}
	require.NoError(t, st.Users().Create(ctx, u))

	token, _, err := tokens.Issue(u.ID, auth.RoleAdmin)
	require.NoError(t, err)

	id, err := a.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.ID)
	assert.Equal(t, auth.RoleAdmin, id.Role)
	assert.Equal(t, "team-1", id.TeamID)

	// A downgraded account keeps authenticating but carries its new role.
	staff := auth.RoleStaff
	_, err = st.Users().Update(ctx, u.ID, auth.UserUpdate{Role: &staff})
	require.NoError(t, err)
	id, err = a.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleStaff, id.Role)
	assert.ErrorIs(t, auth.Authorize(&id, auth.RoleAdmin), auth.ErrRoleDenied)

	// Deactivated accounts are not rejected at this layer.
	inactive := false
	_, err = st.Users().Update(ctx, u.ID, auth.UserUpdate{Active: &inactive})
	require.NoError(t, err)
	id, err = a.Authenticate(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.False(t, id.Active)
}

func TestAuthenticateLookupFailure(t *testing.T) {
	tokens, err := auth.NewTokenService("gate-secret")
	require.NoError(t, err)
	boom := errors.New("connection reset")
	a := auth.NewAuthenticator(tokens, failingFinder{err: boom})
	token, _, err := tokens.Issue("user-1", auth.RoleUser)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), "Bearer "+token)
	assert.ErrorIs(t, err, auth.ErrLookupFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Authentication failed", err.Error())
}

func TestAuthorize(t *testing.T) {
	assert.ErrorIs(t, auth.Authorize(nil, auth.RoleAdmin), auth.ErrUnauthenticated)

	admin := &auth.Identity{ID: "a", Role: auth.RoleAdmin}
	staff := &auth.Identity{ID: "s", Role: auth.RoleStaff}
	assert.NoError(t, auth.Authorize(admin, auth.RoleAdmin))
	assert.NoError(t, auth.Authorize(staff, auth.RoleAdmin, auth.RoleStaff))
	assert.ErrorIs(t, auth.Authorize(staff, auth.RoleAdmin), auth.ErrRoleDenied)
	assert.ErrorIs(t, auth.Authorize(admin), auth.ErrRoleDenied)
	assert.True(t, staff.HasAnyRole(auth.RoleUser, auth.RoleStaff))
}

func TestParseRole(t *testing.T) {
	r, ok := auth.ParseRole(" Manager ")
	assert.True(t, ok)
	assert.Equal(t, auth.RoleManager, r)
	_, ok = auth.ParseRole("root")
	assert.False(t, ok)
}
