package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users() UserStore
	Teams() TeamStore
	Audit() AuditStore
}

// UserFinder is the narrow lookup the Authenticator needs.
type UserFinder interface {
	Find(ctx context.Context, id string) (*User, error)
}

// TeamFinder is the narrow lookup the policy enforcer needs.
type TeamFinder interface {
	Find(ctx context.Context, id string) (*Team, error)
}

// UserStore manages users. Find and List never populate PasswordHash.
type UserStore interface {
	UserFinder
	Create(ctx context.Context, u *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]*User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	AnyWithRole(ctx context.Context, role Role) (bool, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// UserFilter narrows List. LoggedIn selects users with a last login and
// orders them by it, newest first; otherwise newest accounts come first.
type UserFilter struct {
	TeamID   string
	LoggedIn bool
	Limit    int
}

// UserUpdate carries the fields to change; nil fields are left untouched.
type UserUpdate struct {
	Name   *string
	Role   *Role
	TeamID *string
	Active *bool
}

// TeamStore manages teams.
type TeamStore interface {
	TeamFinder
	Create(ctx context.Context, t *Team) error
	List(ctx context.Context) ([]*Team, error)
	Update(ctx context.Context, id string, upd TeamUpdate) (*Team, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// TeamUpdate carries the fields to change; nil fields are left untouched.
type TeamUpdate struct {
	Name         *string
	Organisation *string
	AllowedModes *[]string
}

// AuditStore appends immutable entries.
type AuditStore interface {
	Append(ctx context.Context, entry *AuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AuditFilter narrows audit listings. Results are newest first.
type AuditFilter struct {
	TargetID string
	Action   string
	Limit    int
}
