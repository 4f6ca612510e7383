package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/ids"
	"ayrene.com/backoffice/internal/messaging"
)

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, e *auth.AuditEntry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}
	return s.db.QueryRowContext(ctx, `
		insert into audit_records (id, action, performed_by, target_id, details, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, coalesce($7, now()))
		returning created_at
	`, e.ID, e.Action, e.ActorID, nullIfEmpty(e.TargetID), e.Details, meta, nullTime(e.CreatedAt)).Scan(&e.CreatedAt)
}

func (s *auditStore) List(ctx context.Context, f auth.AuditFilter) ([]*auth.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.TargetID != "" {
		args = append(args, f.TargetID)
		where = append(where, fmt.Sprintf("target_id = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	query := `select id, action, performed_by, target_id, details, metadata, created_at from audit_records`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by created_at desc, id desc" + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*auth.AuditEntry
	for rows.Next() {
		var (
			e      auth.AuditEntry
			target sql.NullString
			raw    []byte
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.ActorID, &target, &e.Details, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetID = target.String
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
			if len(e.Metadata) == 0 {
				e.Metadata = nil
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

type messageStore struct{ db *sql.DB }

const messageColumns = `id, original_text, processed_text, detected_language, ai_mode, user_id, session_id, organisation_id, team_id, processing_time_ms, ts`

func (s *messageStore) Create(ctx context.Context, m *messaging.Message) error {
	if m.ID == "" {
		m.ID = ids.New()
	}
	return s.db.QueryRowContext(ctx, `
		insert into messages (`+messageColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, coalesce($11, now()))
		returning ts
	`, m.ID, m.OriginalText, m.ProcessedText, m.DetectedLanguage, m.AIMode, m.UserID,
		nullIfEmpty(m.SessionID), nullIfEmpty(m.OrganisationID), nullIfEmpty(m.TeamID),
		m.ProcessingTimeMS, nullTime(m.Timestamp),
	).Scan(&m.Timestamp)
}

func messageWhere(f messaging.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.TeamID != "" {
		args = append(args, f.TeamID)
		where = append(where, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " where " + strings.Join(where, " and "), args
}

func (s *messageStore) List(ctx context.Context, f messaging.Filter) ([]*messaging.Message, error) {
	where, args := messageWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`select `+messageColumns+` from messages`+where+` order by ts desc, id desc`+limitClause(f.Limit),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*messaging.Message
	for rows.Next() {
		var (
			m                     messaging.Message
			session, org, teamCol sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.OriginalText, &m.ProcessedText, &m.DetectedLanguage, &m.AIMode, &m.UserID,
			&session, &org, &teamCol, &m.ProcessingTimeMS, &m.Timestamp); err != nil {
			return nil, err
		}
		m.SessionID, m.OrganisationID, m.TeamID = session.String, org.String, teamCol.String
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *messageStore) Count(ctx context.Context, f messaging.Filter) (int, error) {
	where, args := messageWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from messages`+where, args...).Scan(&n)
	return n, err
}
