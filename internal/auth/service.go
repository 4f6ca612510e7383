package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ayrene.com/backoffice/internal/ids"
	"ayrene.com/backoffice/internal/obs"
)

// Service handles credential checks and account bootstrap.
type Service struct {
	users  UserStore
	tokens *TokenService
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithServiceClock overrides the time source used for last-login stamps.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) error {
		if now == nil {
			return errors.New("clock is nil")
		}
		s.now = now
		return nil
	}
}

// NewService constructs a Service.
func NewService(users UserStore, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if users == nil || tokens == nil {
		return nil, errors.New("auth: users and tokens are required")
	}
	s := &Service{users: users, tokens: tokens, now: time.Now}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// LoginResult is returned to a client that presented valid credentials.
type LoginResult struct {
	Token     string    `json:"token"`
	Role      Role      `json:"role"`
	UserID    string    `json:"userId"`
	TeamID    string    `json:"teamId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login checks email and password and issues an access token. Unknown email
// and wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.users.TouchLogin(ctx, user.ID, s.now().UTC()); err != nil {
		obs.WithContext(ctx).WithError(err).WithField("user_id", user.ID).Warn("update last login failed")
	}
	return LoginResult{
		Token:     token,
		Role:      user.Role,
		UserID:    user.ID,
		TeamID:    user.TeamID,
		ExpiresAt: expiresAt,
	}, nil
}

// NewUser describes an account to create.
type NewUser struct {
	Name     string
	Email    string
	Password string
	Role     Role
	TeamID   string
}

// CreateUser hashes the password and stores a new active account.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &User{
		ID:           ids.NewAt(now),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		TeamID:       in.TeamID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// AdminSeed describes the bootstrap administrator.
type AdminSeed struct {
	Name     string
	Email    string
	Password string
}

// EnsureDefaultAdmin creates the seed administrator when no admin account
// exists. It reports whether an account was created.
func (s *Service) EnsureDefaultAdmin(ctx context.Context, seed AdminSeed) (bool, error) {
	exists, err := s.users.AnyWithRole(ctx, RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	if exists {
		return false, nil
	}
	name := seed.Name
	if strings.TrimSpace(name) == "" {
		name = "Super Admin"
	}
	_, err = s.CreateUser(ctx, NewUser{
		Name:     name,
		Email:    seed.Email,
		Password: seed.Password,
		Role:     RoleAdmin,
	})
	if errors.Is(err, ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create default admin: %w", err)
	}
	return true, nil
}

// IssueToken signs a token for an existing user without a password check.
func (s *Service) IssueToken(ctx context.Context, userID string) (string, time.Time, error) {
	user, err := s.users.Find(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.tokens.Issue(user.ID, user.Role)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
