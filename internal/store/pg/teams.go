package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/ids"
	"ayrene.com/backoffice/internal/obs"
)

const teamColumns = `id, name, organisation, allowed_modes, created_at, updated_at`

type teamStore struct{ db *sql.DB }

func scanTeam(row rowScanner) (*auth.Team, error) {
	var (
		t   auth.Team
		raw []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Organisation, &raw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.AllowedModes = decodeModes(t.ID, raw)
	return &t, nil
}

// decodeModes reads the allow-list column. Anything that is not a JSON array
// of strings is treated as no restriction.
func decodeModes(teamID string, raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var modes []string
	if err := json.Unmarshal(raw, &modes); err != nil {
		obs.Logger().WithField("team_id", teamID).WithError(err).Warn("allowed_modes is not a list of strings, treating as unrestricted")
		return nil
	}
	return modes
}

func encodeModes(modes []string) ([]byte, error) {
	if modes == nil {
		modes = []string{}
	}
	b, err := json.Marshal(modes)
	if err != nil {
		return nil, fmt.Errorf("encode allowed_modes: %w", err)
	}
	return b, nil
}

func (s *teamStore) Create(ctx context.Context, t *auth.Team) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	modes, err := encodeModes(t.AllowedModes)
	if err != nil {
		return err
	}
	row := s.db.QueryRowContext(ctx, `
		insert into teams (id, name, organisation, allowed_modes)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, t.ID, t.Name, t.Organisation, modes)
	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *teamStore) Find(ctx context.Context, id string) (*auth.Team, error) {
	t, err := scanTeam(s.db.QueryRowContext(ctx, `select `+teamColumns+` from teams where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return t, err
}

func (s *teamStore) List(ctx context.Context) ([]*auth.Team, error) {
	rows, err := s.db.QueryContext(ctx, `select `+teamColumns+` from teams order by created_at desc, id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*auth.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *teamStore) Update(ctx context.Context, id string, upd auth.TeamUpdate) (*auth.Team, error) {
	var name, org sql.NullString
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
	}
	if upd.Organisation != nil {
		org = sql.NullString{String: *upd.Organisation, Valid: true}
	}
	var modes []byte
	if upd.AllowedModes != nil {
		var err error
		if modes, err = encodeModes(*upd.AllowedModes); err != nil {
			return nil, err
		}
	}
	t, err := scanTeam(s.db.QueryRowContext(ctx, `
		update teams set
			name = coalesce($2, name),
			organisation = coalesce($3, organisation),
			allowed_modes = coalesce($4::jsonb, allowed_modes),
			updated_at = now()
		where id = $1
		returning `+teamColumns,
		id, name, org, modes,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return t, err
}

// Delete removes the team; members are detached by the foreign key.
func (s *teamStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from teams where id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *teamStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from teams`).Scan(&n)
	return n, err
}
