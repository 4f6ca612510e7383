// Package memory is an in-process implementation of the credential, team,
// audit and message stores. It backs development runs without a database and
// the HTTP tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/ids"
	"ayrene.com/backoffice/internal/messaging"
)

var (
	_ auth.Store      = (*Store)(nil)
	_ messaging.Store = (*messageStore)(nil)
)

// Store holds all records behind one lock.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*auth.User
	teams    map[string]*auth.Team
	audit    []*auth.AuditEntry
	messages []*messaging.Message
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users: make(map[string]*auth.User),
		teams: make(map[string]*auth.Team),
		now:   time.Now,
	}
}

func (s *Store) Users() auth.UserStore          { return (*userStore)(s) }
func (s *Store) Teams() auth.TeamStore          { return (*teamStore)(s) }
func (s *Store) Audit() auth.AuditStore         { return (*auditStore)(s) }
func (s *Store) Messages() messaging.Store      { return (*messageStore)(s) }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }
func (s *Store) Close() error                   { return nil }

// Users ----------------------------------------------------------------------

type userStore Store

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if existing.Email == email {
			return auth.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	u.Email = email
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return publicUser(u), nil
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *userStore) List(ctx context.Context, f auth.UserFilter) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*auth.User
	for _, u := range s.users {
		if f.TeamID != "" && u.TeamID != f.TeamID {
			continue
		}
		if f.LoggedIn && u.LastLogin == nil {
			continue
		}
		out = append(out, publicUser(u))
	}
	if f.LoggedIn {
		sort.Slice(out, func(i, j int) bool { return out[i].LastLogin.After(*out[j].LastLogin) })
	} else {
		sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	}
	return limit(out, f.Limit), nil
}

func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.TeamID != nil {
		u.TeamID = *upd.TeamID
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	u.UpdatedAt = s.now().UTC()
	return publicUser(u), nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *userStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *userStore) AnyWithRole(ctx context.Context, role auth.Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (s *userStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	at = at.UTC()
	u.LastLogin = &at
	return nil
}

func publicUser(u *auth.User) *auth.User {
	cp := *u
	cp.PasswordHash = ""
	if u.LastLogin != nil {
		t := *u.LastLogin
		cp.LastLogin = &t
	}
	return &cp
}

// Teams ----------------------------------------------------------------------

type teamStore Store

func (s *teamStore) Create(ctx context.Context, t *auth.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = ids.New()
	}
	now := s.now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = t.CreatedAt
	s.teams[t.ID] = copyTeam(t)
	return nil
}

func (s *teamStore) Find(ctx context.Context, id string) (*auth.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyTeam(t), nil
}

func (s *teamStore) List(ctx context.Context) ([]*auth.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.Team, 0, len(s.teams))
	for _, t := range s.teams {
		out = append(out, copyTeam(t))
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *teamStore) Update(ctx context.Context, id string, upd auth.TeamUpdate) (*auth.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Organisation != nil {
		t.Organisation = *upd.Organisation
	}
	if upd.AllowedModes != nil {
		t.AllowedModes = append([]string(nil), (*upd.AllowedModes)...)
	}
	t.UpdatedAt = s.now().UTC()
	return copyTeam(t), nil
}

// Delete removes the team and detaches its members.
func (s *teamStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.teams, id)
	for _, u := range s.users {
		if u.TeamID == id {
			u.TeamID = ""
		}
	}
	return nil
}

func (s *teamStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.teams), nil
}

func copyTeam(t *auth.Team) *auth.Team {
	cp := *t
	if t.AllowedModes != nil {
		cp.AllowedModes = append([]string(nil), t.AllowedModes...)
	}
	return &cp
}

// Audit ----------------------------------------------------------------------

type auditStore Store

func (s *auditStore) Append(ctx context.Context, e *auth.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	cp := *e
	s.audit = append(s.audit, &cp)
	return nil
}

func (s *auditStore) List(ctx context.Context, f auth.AuditFilter) ([]*auth.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*auth.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if f.TargetID != "" && e.TargetID != f.TargetID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return limit(out, f.Limit), nil
}

// Messages -------------------------------------------------------------------

type messageStore Store

func (s *messageStore) Create(ctx context.Context, m *messaging.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = ids.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now().UTC()
	}
	cp := *m
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *messageStore) List(ctx context.Context, f messaging.Filter) ([]*messaging.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.match(f)
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i].Timestamp, out[i].ID, out[j].Timestamp, out[j].ID)
	})
	return limit(out, f.Limit), nil
}

func (s *messageStore) Count(ctx context.Context, f messaging.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(f)), nil
}

func (s *messageStore) match(f messaging.Filter) []*messaging.Message {
	var out []*messaging.Message
	for _, m := range s.messages {
		if f.UserID != "" && m.UserID != f.UserID {
			continue
		}
		if f.TeamID != "" && m.TeamID != f.TeamID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// helpers --------------------------------------------------------------------

func newer(a time.Time, aID string, b time.Time, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID > bID
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
