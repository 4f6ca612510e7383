package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/store/memory"
)

func newService(t *testing.T) (*auth.Service, *memory.Store, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("svc-secret")
	require.NoError(t, err)
	st := memory.New()
	svc, err := auth.NewService(st.Users(), tokens)
	require.NoError(t, err)
	return svc, st, tokens
}

func TestEnsureDefaultAdminIsIdempotent(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	seed := auth.AdminSeed{Name: "Super Admin", Email: "admin@ayrene.com", Password: "Admin@123"}

	created, err := svc.EnsureDefaultAdmin(ctx, seed)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureDefaultAdmin(ctx, seed)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := st.Users().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	admin, err := st.Users().FindByEmail(ctx, "admin@ayrene.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, admin.Role)
	assert.True(t, admin.Active)
	assert.NoError(t, auth.VerifyPassword(admin.PasswordHash, "Admin@123"))
}

func TestEnsureDefaultAdminSkipsWhenAnyAdminExists(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, auth.NewUser{Name: "Other", Email: "boss@example.com", Password: "pw", Role: auth.RoleAdmin})
	require.NoError(t, err)

	created, err := svc.EnsureDefaultAdmin(ctx, auth.AdminSeed{Email: "admin@ayrene.com", Password: "Admin@123"})
	require.NoError(t, err)
	assert.False(t, created)
	_, err = st.Users().FindByEmail(ctx, "admin@ayrene.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestLogin(t *testing.T) {
	svc, st, tokens := newService(t)
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, auth.NewUser{Name: "Ann", Email: " Ann@Example.com ", Password: "pw-1", Role: auth.RoleUser, TeamID: "team-9"})
	require.NoError(t, err)
	assert.Empty(t, u.PasswordHash)

	res, err := svc.Login(ctx, "ann@example.com", "pw-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.UserID)
	assert.Equal(t, auth.RoleUser, res.Role)
	assert.Equal(t, "team-9", res.TeamID)

	claims, err := tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.SubjectID)

	stored, err := st.Users().Find(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.WithinDuration(t, time.Now(), *stored.LastLogin, time.Minute)

	_, err = svc.Login(ctx, "ann@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "pw-1")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, auth.NewUser{Email: "x@example.com", Password: "pw"})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = svc.CreateUser(ctx, auth.NewUser{Name: "X", Email: "x@example.com", Password: "pw", Role: auth.RoleStaff})
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, auth.NewUser{Name: "Y", Email: "X@example.com", Password: "pw", Role: auth.RoleStaff})
	assert.ErrorIs(t, err, auth.ErrConflict)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, auth.VerifyPassword(hash, "s3cret"))
	assert.ErrorIs(t, auth.VerifyPassword(hash, "other"), auth.ErrInvalidCredentials)
	assert.ErrorIs(t, auth.VerifyPassword("", "s3cret"), auth.ErrInvalidCredentials)

	_, err = auth.HashPassword("")
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = auth.HashPassword(strings.Repeat("x", auth.MaxPasswordBytes+1))
	assert.ErrorIs(t, err, auth.ErrPasswordTooLong)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}
