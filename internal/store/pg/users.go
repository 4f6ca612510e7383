package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/ids"
)

const userColumns = `id, name, email, role, team_id, organisation_id, is_active, last_login, created_at, updated_at`

type userStore struct{ db *sql.DB }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (*auth.User, error) {
	var (
		u         auth.User
		role      string
		teamID    sql.NullString
		orgID     sql.NullString
		lastLogin sql.NullTime
	)
	dest := []any{&u.ID, &u.Name, &u.Email, &role, &teamID, &orgID, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	u.TeamID = teamID.String
	u.OrganisationID = orgID.String
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		u.LastLogin = &t
	}
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, name, email, password_hash, role, team_id, organisation_id, is_active)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning created_at, updated_at
	`, u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), nullIfEmpty(u.TeamID), nullIfEmpty(u.OrganisationID), u.Active)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return fmt.Errorf("%w: team %s", auth.ErrNotFound, u.TeamID)
			}
		}
		return err
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	var hash string
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+`, password_hash from users where email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	), &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	return u, nil
}

func (s *userStore) List(ctx context.Context, f auth.UserFilter) ([]*auth.User, error) {
	var (
		where []string
		args  []any
	)
	if f.TeamID != "" {
		args = append(args, f.TeamID)
		where = append(where, fmt.Sprintf("team_id = $%d", len(args)))
	}
	order := "created_at desc, id desc"
	if f.LoggedIn {
		where = append(where, "last_login is not null")
		order = "last_login desc"
	}
	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by " + order + limitClause(f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	var role sql.NullString
	if upd.Role != nil {
		role = sql.NullString{String: string(*upd.Role), Valid: true}
	}
	var name sql.NullString
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
	}
	var active sql.NullBool
	if upd.Active != nil {
		active = sql.NullBool{Bool: *upd.Active, Valid: true}
	}
	setTeam := upd.TeamID != nil
	var team sql.NullString
	if setTeam {
		team = nullIfEmpty(*upd.TeamID)
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		update users set
			name = coalesce($2, name),
			role = coalesce($3, role),
			is_active = coalesce($4, is_active),
			team_id = case when $5 then $6 else team_id end,
			updated_at = now()
		where id = $1
		returning `+userColumns,
		id, name, role, active, setTeam, team,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return nil, fmt.Errorf("%w: team", auth.ErrNotFound)
	}
	return u, err
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *userStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func (s *userStore) AnyWithRole(ctx context.Context, role auth.Role) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from users where role = $1)`, string(role)).Scan(&exists)
	return exists, err
}

func (s *userStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update users set last_login = $2 where id = $1`, id, at.UTC())
	if err != nil {
		return err
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
