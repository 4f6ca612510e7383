package auth

import (
	"strings"
	"time"
)

// Role is the access level carried by a user account.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
	RoleUser    Role = "user"
)

// KnownRoles lists every role any component understands. Which of them may
// be assigned on account creation is configuration.
var KnownRoles = []Role{RoleAdmin, RoleManager, RoleStaff, RoleUser}

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownRoles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// User is a stored account. PasswordHash is only populated by lookups that
// need it (login).
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           Role       `json:"role"`
	TeamID         string     `json:"teamId,omitempty"`
	OrganisationID string     `json:"organisationId,omitempty"`
	Active         bool       `json:"isActive"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Team groups users and restricts the AI modes they may request. A nil or
// empty AllowedModes means unrestricted.
type Team struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Organisation string    `json:"organisation,omitempty"`
	AllowedModes []string  `json:"allowed_modes"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AuditEntry is an append-only record of an administrative action.
type AuditEntry struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	ActorID   string         `json:"performedBy"`
	TargetID  string         `json:"targetId,omitempty"`
	Details   string         `json:"details,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Identity is the authenticated caller, resolved from the live user record.
type Identity struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           Role   `json:"role"`
	TeamID         string `json:"teamId,omitempty"`
	OrganisationID string `json:"organisationId,omitempty"`
	Active         bool   `json:"isActive"`
}

// IdentityFromUser projects a stored user onto an Identity.
func IdentityFromUser(u *User) Identity {
	return Identity{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           u.Role,
		TeamID:         u.TeamID,
		OrganisationID: u.OrganisationID,
		Active:         u.Active,
	}
}

// HasAnyRole reports whether the identity's role is one of roles.
func (id Identity) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}
