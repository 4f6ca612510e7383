package auth

import "errors"

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenMalformed = errors.New("auth: token malformed")

	// ErrRoleDenied is returned by Authorize when the identity's role is not
	// in the allowed set.
	ErrRoleDenied = errors.New("auth: role not permitted")
)

// Reason classifies why a request could not be authenticated.
type Reason string

const (
	ReasonMissingHeader  Reason = "missing_header"
	ReasonBadScheme      Reason = "bad_scheme"
	ReasonMissingToken   Reason = "missing_token"
	ReasonExpired        Reason = "expired"
	ReasonMalformed      Reason = "malformed"
	ReasonUnknownSubject Reason = "unknown_subject"
	ReasonLookupFailed   Reason = "lookup_failed"
	ReasonNoIdentity     Reason = "no_identity"
)

// Failure is an authentication failure. Message is safe to show to clients.
type Failure struct {
	Reason  Reason
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Is matches any Failure with the same Reason.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Reason == f.Reason
}

var (
	ErrMissingHeader  = &Failure{Reason: ReasonMissingHeader, Message: "Authorization header missing"}
	ErrBadScheme      = &Failure{Reason: ReasonBadScheme, Message: "Authorization format must be Bearer <token>"}
	ErrMissingToken   = &Failure{Reason: ReasonMissingToken, Message: "Token not found"}
	ErrExpired        = &Failure{Reason: ReasonExpired, Message: "Token expired, please login again"}
	ErrMalformed      = &Failure{Reason: ReasonMalformed, Message: "Invalid authentication token"}
	ErrUnknownSubject = &Failure{Reason: ReasonUnknownSubject, Message: "User not found for this token"}
	ErrLookupFailed   = &Failure{Reason: ReasonLookupFailed, Message: "Authentication failed"}

	// ErrUnauthenticated is returned by Authorize when no identity is present.
	ErrUnauthenticated = &Failure{Reason: ReasonNoIdentity, Message: "Unauthorized"}
)

func wrapFailure(base *Failure, err error) *Failure {
	return &Failure{Reason: base.Reason, Message: base.Message, Err: err}
}
