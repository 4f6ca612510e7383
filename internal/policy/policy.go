// Package policy decides whether a caller's team permits a requested AI mode.
// Infrastructure problems never block a request: only an explicit mismatch
// against a non-empty allow-list does.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/obs"
)

var tracer = otel.Tracer("ayrene.com/backoffice/internal/policy")

// Kind tags a Decision.
type Kind int

const (
	KindAllow Kind = iota
	KindDeny
	KindFault
)

func (k Kind) String() string {
	switch k {
	case KindAllow:
		return "allow"
	case KindDeny:
		return "deny"
	case KindFault:
		return "fault"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Decision is the outcome of evaluating one request.
type Decision struct {
	Kind    Kind
	Message string
	Err     error
}

// Blocks reports whether the request must be rejected.
func (d Decision) Blocks() bool { return d.Kind == KindDeny }

// DeniedMessage is the client-facing text for a rejected mode.
func DeniedMessage(mode string) string {
	return fmt.Sprintf("AI mode '%s' is not allowed for your team", mode)
}

// Enforcer evaluates AI-mode requests against team allow-lists.
type Enforcer struct {
	teams auth.TeamFinder
}

// New returns an Enforcer reading teams from the given finder.
func New(teams auth.TeamFinder) *Enforcer {
	return &Enforcer{teams: teams}
}

// Evaluate returns the raw decision, including KindFault for lookup errors.
func (e *Enforcer) Evaluate(ctx context.Context, id auth.Identity, mode string) Decision {
	ctx, span := tracer.Start(ctx, "policy.Evaluate")
	defer span.End()
	span.SetAttributes(attribute.String("policy.mode", mode))

	d := e.evaluate(ctx, id, mode)
	span.SetAttributes(attribute.String("policy.outcome", d.Kind.String()))
	if d.Err != nil {
		span.RecordError(d.Err)
	}
	return d
}

func (e *Enforcer) evaluate(ctx context.Context, id auth.Identity, mode string) Decision {
	if strings.TrimSpace(mode) == "" {
		return Decision{Kind: KindAllow}
	}
	log := obs.WithContext(ctx).WithFields(logrus.Fields{"user_id": id.ID, "ai_mode": mode})
	if id.TeamID == "" {
		log.Warn("policy: user has no team, allowing")
		return Decision{Kind: KindAllow}
	}
	team, err := e.teams.Find(ctx, id.TeamID)
	if errors.Is(err, auth.ErrNotFound) || (err == nil && team == nil) {
		log.WithField("team_id", id.TeamID).Warn("policy: team not found, allowing")
		return Decision{Kind: KindAllow}
	}
	if err != nil {
		return Decision{Kind: KindFault, Err: fmt.Errorf("load team %s: %w", id.TeamID, err)}
	}
	if len(team.AllowedModes) == 0 {
		return Decision{Kind: KindAllow}
	}
	for _, allowed := range team.AllowedModes {
		if allowed == mode {
			return Decision{Kind: KindAllow}
		}
	}
	return Decision{Kind: KindDeny, Message: DeniedMessage(mode)}
}

// Enforce evaluates and never blocks on a fault: lookup errors and panics
// come back as KindFault, which Blocks reports as false.
func (e *Enforcer) Enforce(ctx context.Context, id auth.Identity, mode string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Kind: KindFault, Err: fmt.Errorf("policy panic: %v", r)}
		}
		if d.Kind == KindFault {
			obs.WithContext(ctx).WithError(d.Err).Warn("policy: evaluation failed, allowing")
		}
		obs.PolicyDecisions.WithLabelValues(d.Kind.String()).Inc()
	}()
	return e.Evaluate(ctx, id, mode)
}
