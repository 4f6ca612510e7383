package auth

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const bearerScheme = "Bearer"

var tracer = otel.Tracer("ayrene.com/backoffice/internal/auth")

// Authenticator resolves an Authorization header value to an Identity.
type Authenticator struct {
	tokens *TokenService
	users  UserFinder
}

// NewAuthenticator wires the token service to the user lookup.
func NewAuthenticator(tokens *TokenService, users UserFinder) *Authenticator {
	return &Authenticator{tokens: tokens, users: users}
}

// Authenticate validates the bearer token and loads the live user record.
// Every error it returns is a *Failure.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (Identity, error) {
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	id, err := a.authenticate(ctx, header)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			span.SetAttributes(attribute.String("auth.failure", string(f.Reason)))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		return Identity{}, err
	}
	span.SetAttributes(attribute.String("auth.role", string(id.Role)))
	return id, nil
}

func (a *Authenticator) authenticate(ctx context.Context, header string) (Identity, error) {
	token, err := BearerToken(header)
	if err != nil {
		return Identity{}, err
	}

	claims, err := a.tokens.Verify(token)
	switch {
	case errors.Is(err, ErrTokenExpired):
		return Identity{}, wrapFailure(ErrExpired, err)
	case err != nil:
		return Identity{}, wrapFailure(ErrMalformed, err)
	}

	user, err := a.users.Find(ctx, claims.SubjectID)
	switch {
	case errors.Is(err, ErrNotFound):
		return Identity{}, wrapFailure(ErrUnknownSubject, err)
	case err != nil:
		return Identity{}, wrapFailure(ErrLookupFailed, err)
	case user == nil:
		return Identity{}, ErrUnknownSubject
	}
	// The active flag is intentionally not consulted here.
	return IdentityFromUser(user), nil
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is case-sensitive and the token is the second space-separated field,
// so "Bearer  abc" (two spaces) carries an empty token. A header holding only
// the scheme is a missing token, since HTTP servers strip the trailing space.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingHeader
	}
	scheme, rest, _ := strings.Cut(header, " ")
	if scheme != bearerScheme {
		return "", ErrBadScheme
	}
	token, _, _ := strings.Cut(rest, " ")
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
