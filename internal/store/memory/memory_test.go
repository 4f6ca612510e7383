package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/messaging"
)

func TestUserCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &auth.User{Name: "Ann", Email: "Ann@Example.com", PasswordHash: "hash", Role: auth.RoleUser}
	require.NoError(t, s.Users().Create(ctx, u))
	require.NotEmpty(t, u.ID)

	found, err := s.Users().Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, found.PasswordHash, "Find must not expose the hash")
	assert.Equal(t, "ann@example.com", found.Email)

	withHash, err := s.Users().FindByEmail(ctx, "ANN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash", withHash.PasswordHash)

	err = s.Users().Create(ctx, &auth.User{Name: "Dup", Email: "ann@example.com"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = s.Users().Find(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestUserUpdateAndRoles(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &auth.User{Name: "Bob", Email: "bob@example.com", Role: auth.RoleAdmin, Active: true}
	require.NoError(t, s.Users().Create(ctx, u))

	ok, err := s.Users().AnyWithRole(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	role := auth.RoleStaff
	inactive := false
	updated, err := s.Users().Update(ctx, u.ID, auth.UserUpdate{Role: &role, Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleStaff, updated.Role)
	assert.False(t, updated.Active)

	ok, err = s.Users().AnyWithRole(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Users().Delete(ctx, u.ID))
	assert.ErrorIs(t, s.Users().Delete(ctx, u.ID), auth.ErrNotFound)
}

func TestUserListLoggedIn(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := &auth.User{Name: "A", Email: "a@example.com"}
	b := &auth.User{Name: "B", Email: "b@example.com"}
	c := &auth.User{Name: "C", Email: "c@example.com"}
	for _, u := range []*auth.User{a, b, c} {
		require.NoError(t, s.Users().Create(ctx, u))
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Users().TouchLogin(ctx, a.ID, base))
	require.NoError(t, s.Users().TouchLogin(ctx, c.ID, base.Add(time.Hour)))

	logins, err := s.Users().List(ctx, auth.UserFilter{LoggedIn: true})
	require.NoError(t, err)
	require.Len(t, logins, 2)
	assert.Equal(t, c.ID, logins[0].ID)
	assert.Equal(t, a.ID, logins[1].ID)
}

func TestTeamDeleteDetachesMembers(t *testing.T) {
	ctx := context.Background()
	s := New()
	team := &auth.Team{Name: "Ops", AllowedModes: []string{"formal"}}
	require.NoError(t, s.Teams().Create(ctx, team))
	u := &auth.User{Name: "M", Email: "m@example.com", TeamID: team.ID}
	require.NoError(t, s.Users().Create(ctx, u))

	members, err := s.Users().List(ctx, auth.UserFilter{TeamID: team.ID})
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, s.Teams().Delete(ctx, team.ID))
	got, err := s.Users().Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TeamID)

	_, err = s.Teams().Find(ctx, team.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

func TestTeamUpdateCopiesModes(t *testing.T) {
	ctx := context.Background()
	s := New()
	team := &auth.Team{Name: "Ops"}
	require.NoError(t, s.Teams().Create(ctx, team))

	modes := []string{"clean"}
	updated, err := s.Teams().Update(ctx, team.ID, auth.TeamUpdate{AllowedModes: &modes})
	require.NoError(t, err)
	modes[0] = "mutated"
	assert.Equal(t, []string{"clean"}, updated.AllowedModes)

	found, err := s.Teams().Find(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"clean"}, found.AllowedModes)
}

func TestAuditNewestFirstWithFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, e := range []*auth.AuditEntry{
		{Action: "CREATE_USER", TargetID: "u1"},
		{Action: "UPDATE_USER", TargetID: "u1"},
		{Action: "CREATE_USER", TargetID: "u2"},
	} {
		require.NoError(t, s.Audit().Append(ctx, e))
	}

	all, err := s.Audit().List(ctx, auth.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "u2", all[0].TargetID)

	forU1, err := s.Audit().List(ctx, auth.AuditFilter{TargetID: "u1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, forU1, 1)
	assert.Equal(t, "UPDATE_USER", forU1[0].Action)

	creates, err := s.Audit().List(ctx, auth.AuditFilter{Action: "CREATE_USER"})
	require.NoError(t, err)
	assert.Len(t, creates, 2)
}

func TestMessagesFilterAndCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*messaging.Message{
		{OriginalText: "one", UserID: "u1", TeamID: "t1", Timestamp: base},
		{OriginalText: "two", UserID: "u2", TeamID: "t1", Timestamp: base.Add(time.Minute)},
		{OriginalText: "three", UserID: "u1", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, m := range msgs {
		require.NoError(t, s.Messages().Create(ctx, m))
	}

	list, err := s.Messages().List(ctx, messaging.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].OriginalText)

	n, err := s.Messages().Count(ctx, messaging.Filter{TeamID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	latest, err := s.Messages().List(ctx, messaging.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "three", latest[0].OriginalText)
}
