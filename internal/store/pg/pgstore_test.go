package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"ayrene.com/backoffice/internal/auth"
	"ayrene.com/backoffice/internal/messaging"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

var userCols = []string{"id", "name", "email", "role", "team_id", "organisation_id", "is_active", "last_login", "created_at", "updated_at"}

func TestUserFindMapsNoRows(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select .* from users where id = \\$1").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := s.Users().Find(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserFindScansNullables(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("select .* from users where id = \\$1").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "Ann", "ann@example.com", "staff", nil, nil, true, nil, now, now))

	u, err := s.Users().Find(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if u.Role != auth.RoleStaff || u.TeamID != "" || u.LastLogin != nil || u.PasswordHash != "" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestUserFindByEmailIncludesHash(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	cols := append(append([]string{}, userCols...), "password_hash")
	mock.ExpectQuery("select .*password_hash from users where email = \\$1").WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "Ann", "ann@example.com", "admin", "t1", "o1", true, now, now, now, "$2a$10$hash"))

	u, err := s.Users().FindByEmail(context.Background(), " Ann@Example.com ")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.PasswordHash != "$2a$10$hash" || u.TeamID != "t1" || u.LastLogin == nil {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestUserCreateConflict(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("insert into users").
		WithArgs(sqlmock.AnyArg(), "Ann", "ann@example.com", "hash", "user", sql.NullString{}, sql.NullString{}, true).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := s.Users().Create(context.Background(), &auth.User{Name: "Ann", Email: "ANN@example.com", PasswordHash: "hash", Role: auth.RoleUser, Active: true})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUserDeleteMissing(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("delete from users where id = \\$1").WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Users().Delete(context.Background(), "gone"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserListLoggedInOrdersByLastLogin(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select .* from users where last_login is not null order by last_login desc limit 50").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u1", "Ann", "ann@example.com", "user", nil, nil, true, now, now, now))

	users, err := s.Users().List(context.Background(), auth.UserFilter{LoggedIn: true, Limit: 50})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(users) != 1 || users[0].LastLogin == nil {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestUserAnyWithRole(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select exists").WithArgs("admin").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Users().AnyWithRole(context.Background(), auth.RoleAdmin)
	if err != nil || !ok {
		t.Fatalf("AnyWithRole = %v, %v", ok, err)
	}
}

var teamCols = []string{"id", "name", "organisation", "allowed_modes", "created_at", "updated_at"}

func TestTeamFindDecodesModes(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select .* from teams where id = \\$1").WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(teamCols).AddRow("t1", "Ops", "Acme", []byte(`["formal","clean"]`), now, now))

	team, err := s.Teams().Find(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(team.AllowedModes) != 2 || team.AllowedModes[0] != "formal" {
		t.Fatalf("unexpected modes: %v", team.AllowedModes)
	}
}

func TestTeamFindNonListModesAreUnrestricted(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select .* from teams where id = \\$1").WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(teamCols).AddRow("t1", "Ops", "", []byte(`"formal"`), now, now))

	team, err := s.Teams().Find(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if team.AllowedModes != nil {
		t.Fatalf("expected nil modes, got %v", team.AllowedModes)
	}
}

func TestTeamUpdateMissing(t *testing.T) {
	s, mock := newMock(t)
	name := "New"
	mock.ExpectQuery("update teams set").WillReturnError(sql.ErrNoRows)

	if _, err := s.Teams().Update(context.Background(), "nope", auth.TeamUpdate{Name: &name}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditAppendEncodesMetadata(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("insert into audit_records").
		WithArgs("a1", "ADMIN_MESSAGE_CREATED", "admin-1", sql.NullString{String: "u1", Valid: true}, "", []byte(`{"messageId":"m1"}`), sql.NullTime{Time: at, Valid: true}).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(at))

	err := s.Audit().Append(context.Background(), &auth.AuditEntry{
		ID: "a1", Action: "ADMIN_MESSAGE_CREATED", ActorID: "admin-1", TargetID: "u1",
		Metadata: map[string]any{"messageId": "m1"}, CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestAuditListFilters(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from audit_records where target_id = \\$1 order by created_at desc, id desc limit 5").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "performed_by", "target_id", "details", "metadata", "created_at"}).
			AddRow("a1", "UPDATE_USER", "admin-1", "u1", "", []byte(`{}`), now))

	entries, err := s.Audit().List(context.Background(), auth.AuditFilter{TargetID: "u1", Limit: 5})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Metadata != nil {
		t.Fatalf("unexpected entries: %+v", entries[0])
	}
}

func TestMessageListAndCount(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	cols := []string{"id", "original_text", "processed_text", "detected_language", "ai_mode", "user_id", "session_id", "organisation_id", "team_id", "processing_time_ms", "ts"}
	mock.ExpectQuery("from messages where user_id = \\$1 and team_id = \\$2 order by ts desc, id desc limit 10").
		WithArgs("u1", "t1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("m1", "hi", "hi", "en", "default", "u1", nil, nil, "t1", int64(3), now))
	mock.ExpectQuery("select count\\(\\*\\) from messages where user_id = \\$1").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	msgs, err := s.Messages().List(context.Background(), messaging.Filter{UserID: "u1", TeamID: "t1", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(msgs) != 1 || msgs[0].TeamID != "t1" || msgs[0].SessionID != "" || msgs[0].ProcessingTimeMS != 3 {
		t.Fatalf("unexpected messages: %+v", msgs[0])
	}

	n, err := s.Messages().Count(context.Background(), messaging.Filter{UserID: "u1"})
	if err != nil || n != 7 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}
