// Package messaging stores user and admin messages and runs them through the
// AI annotator on ingestion.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ayrene.com/backoffice/internal/ai"
	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/ids"
	"ayrene.com/backoffice/internal/obs"
)

// ErrEmptyText is returned when a message has no text.
var ErrEmptyText = errors.New("messaging: text is required")

const (
	// DefaultMode applies to user messages that do not name a mode.
	DefaultMode = ai.ModeDefault
	// AdminMode applies to admin-sent messages that do not name a mode.
	AdminMode = ai.ModeManual
)

// Message is one stored message.
type Message struct {
	ID               string    `json:"id"`
	OriginalText     string    `json:"original_text"`
	ProcessedText    string    `json:"processed_text"`
	DetectedLanguage string    `json:"detected_language"`
	AIMode           string    `json:"ai_mode"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id,omitempty"`
	OrganisationID   string    `json:"organisation_id,omitempty"`
	TeamID           string    `json:"team_id,omitempty"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	Timestamp        time.Time `json:"timestamp"`
}

// Filter narrows listings. Results are newest first.
type Filter struct {
	UserID string
	TeamID string
	Limit  int
}

// Store persists messages.
type Store interface {
	Create(ctx context.Context, m *Message) error
	List(ctx context.Context, f Filter) ([]*Message, error)
	Count(ctx context.Context, f Filter) (int, error)
}

// Service ingests messages.
type Service struct {
	store     Store
	processor ai.Processor
	now       func() time.Time
}

// NewService wires a message store to an annotator. A nil processor stores
// text unprocessed.
func NewService(store Store, processor ai.Processor) *Service {
	return &Service{store: store, processor: processor, now: time.Now}
}

// Draft is a message submitted by an authenticated user.
type Draft struct {
	Text      string
	Mode      string
	SessionID string
}

// Ingest annotates and stores a message sent by the caller. Annotation
// failures fall back to the unprocessed text.
func (s *Service) Ingest(ctx context.Context, sender auth.Identity, d Draft) (*Message, error) {
	if strings.TrimSpace(d.Text) == "" {
		return nil, ErrEmptyText
	}
	mode := strings.TrimSpace(d.Mode)
	if mode == "" {
		mode = DefaultMode
	}
	res := s.annotate(ctx, d.Text, mode)
	now := s.now().UTC()
	m := &Message{
		ID:               ids.NewAt(now),
		OriginalText:     d.Text,
		ProcessedText:    res.Processed,
		DetectedLanguage: res.Language,
		AIMode:           mode,
		UserID:           sender.ID,
		SessionID:        d.SessionID,
		OrganisationID:   sender.OrganisationID,
		TeamID:           sender.TeamID,
		ProcessingTimeMS: res.Elapsed.Milliseconds(),
		Timestamp:        now,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	return m, nil
}

func (s *Service) annotate(ctx context.Context, text, mode string) ai.Result {
	if s.processor == nil {
		return ai.Fallback(text)
	}
	res, err := s.processor.Process(ctx, text, mode)
	if err != nil {
		obs.WithContext(ctx).WithError(err).WithField("ai_mode", mode).Warn("ai processing failed, storing raw text")
		return ai.Fallback(text)
	}
	return res
}

// AdminDraft is a message an administrator records on behalf of a user.
type AdminDraft struct {
	Text             string
	ProcessedText    string
	Mode             string
	DetectedLanguage string
}

// Send stores an admin-authored message for recipient without annotation.
func (s *Service) Send(ctx context.Context, recipient *auth.User, d AdminDraft) (*Message, error) {
	if strings.TrimSpace(d.Text) == "" {
		return nil, ErrEmptyText
	}
	now := s.now().UTC()
	m := &Message{
		ID:               ids.NewAt(now),
		OriginalText:     d.Text,
		ProcessedText:    firstNonEmpty(d.ProcessedText, d.Text),
		DetectedLanguage: firstNonEmpty(d.DetectedLanguage, ai.UnknownLanguage),
		AIMode:           firstNonEmpty(d.Mode, AdminMode),
		UserID:           recipient.ID,
		OrganisationID:   recipient.OrganisationID,
		TeamID:           recipient.TeamID,
		Timestamp:        now,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	return m, nil
}

// List returns messages matching f.
func (s *Service) List(ctx context.Context, f Filter) ([]*Message, error) {
	return s.store.List(ctx, f)
}

// Count returns the number of messages matching f.
func (s *Service) Count(ctx context.Context, f Filter) (int, error) {
	return s.store.Count(ctx, f)
}

// VisibleTo returns the listing filter for viewer: plain users only see
// their own messages, admins may narrow by user and team, staff see all.
func VisibleTo(viewer auth.Identity, userID, teamID string) Filter {
	switch viewer.Role {
	case auth.RoleUser:
		return Filter{UserID: viewer.ID}
	case auth.RoleAdmin:
		return Filter{UserID: userID, TeamID: teamID}
	default:
		return Filter{}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
