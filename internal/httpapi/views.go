package httpapi

import (
	"context"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/messaging"
)

// Response projections. Related records are embedded the way the web
// client expects them.

type teamRef struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Organisation string `json:"organisation,omitempty"`
}

type userRef struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Role  auth.Role `json:"role,omitempty"`
}

type userView struct {
	*auth.User
	Team *teamRef `json:"team"`
}

type teamView struct {
	*auth.Team
	Users []userRef `json:"users"`
}

type messageView struct {
	*messaging.Message
	User *userRef `json:"user,omitempty"`
}

type auditView struct {
	*auth.AuditEntry
	Actor *userRef `json:"actor,omitempty"`
}

func refOf(u *auth.User) *userRef {
	if u == nil {
		return nil
	}
	return &userRef{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// directory caches user and team lookups for one response.
type directory struct {
	store auth.Store
	users map[string]*auth.User
	teams map[string]*auth.Team
}

func newDirectory(store auth.Store) *directory {
	return &directory{store: store, users: map[string]*auth.User{}, teams: map[string]*auth.Team{}}
}

// user returns nil for unknown ids, so deleted senders render without a
// populated user.
func (d *directory) user(ctx context.Context, id string) (*auth.User, error) {
	if id == "" {
		return nil, nil
	}
	if u, ok := d.users[id]; ok {
		return u, nil
	}
	u, err := d.store.Users().Find(ctx, id)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	d.users[id] = u
	return u, nil
}

func (d *directory) team(ctx context.Context, id string) (*auth.Team, error) {
	if id == "" {
		return nil, nil
	}
	if t, ok := d.teams[id]; ok {
		return t, nil
	}
	t, err := d.store.Teams().Find(ctx, id)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	d.teams[id] = t
	return t, nil
}

func (d *directory) userView(ctx context.Context, u *auth.User) (userView, error) {
	v := userView{User: u}
	t, err := d.team(ctx, u.TeamID)
	if err != nil {
		return v, err
	}
	if t != nil {
		v.Team = &teamRef{ID: t.ID, Name: t.Name, Organisation: t.Organisation}
	}
	return v, nil
}

func (d *directory) messageViews(ctx context.Context, msgs []*messaging.Message) ([]messageView, error) {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		u, err := d.user(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, messageView{Message: m, User: refOf(u)})
	}
	return out, nil
}

func (d *directory) auditViews(ctx context.Context, entries []*auth.AuditEntry) ([]auditView, error) {
	out := make([]auditView, 0, len(entries))
	for _, e := range entries {
		u, err := d.user(ctx, e.ActorID)
		if err != nil {
			return nil, err
		}
		out = append(out, auditView{AuditEntry: e, Actor: refOf(u)})
	}
	return out, nil
}
