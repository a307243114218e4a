package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kmarlow/credauth"
)

var _ credauth.CredentialStore = (*Store)(nil)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewStore(db), mock, db
}

func TestFindIdentityByEmail_Found(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,\s*email,.*FROM\s+identities\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)\s*$`

	born := time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
	created := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "email", "username", "password_hash", "role", "email_verified", "birth_date", "created_at"}).
		AddRow("id-1", "alex@example.com", "alex", "$argon2id$...", "user", true, born, created)
	mock.ExpectQuery(q).WithArgs("Alex@Example.com").WillReturnRows(rows)

	got, err := store.FindIdentityByEmail(context.Background(), "Alex@Example.com")
	if err != nil {
		t.Fatalf("FindIdentityByEmail error: %v", err)
	}
	if got.ID != "id-1" || got.Username != "alex" || !got.EmailVerified {
		t.Fatalf("unexpected identity: %+v", got)
	}
}

func TestFindIdentityByEmail_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+identities`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindIdentityByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, credauth.ErrNoRows) {
		t.Fatalf("want credauth.ErrNoRows, got %v", err)
	}
}

func TestUsernamesTaken_BatchQuery(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+username\s+FROM\s+identities\s+WHERE\s+lower\(username\)\s+IN\s+\(\$1,\s*\$2,\s*\$3\)\s*$`

	rows := sqlmock.NewRows([]string{"username"}).AddRow("alex1")
	mock.ExpectQuery(q).WithArgs("alex1", "alex2", "alex3").WillReturnRows(rows)

	taken, err := store.UsernamesTaken(context.Background(), []string{"Alex1", "alex2", "alex3"})
	if err != nil {
		t.Fatalf("UsernamesTaken error: %v", err)
	}
	if len(taken) != 1 {
		t.Fatalf("want 1 taken, got %v", taken)
	}
	if _, ok := taken["alex1"]; !ok {
		t.Fatalf("alex1 should be reported taken")
	}
}

func TestUsernamesTaken_EmptyInput(t *testing.T) {
	store, _, db := newStoreWithMock(t)
	defer db.Close()

	taken, err := store.UsernamesTaken(context.Background(), nil)
	if err != nil {
		t.Fatalf("UsernamesTaken error: %v", err)
	}
	if len(taken) != 0 {
		t.Fatalf("want empty map, got %v", taken)
	}
}

func TestReplaceRefreshToken_Won(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+refresh_tokens\s+SET\s+token\s*=\s*\$2,.*WHERE\s+token\s*=\s*\$1\s*$`

	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(q).
		WithArgs("old-token", "new-token", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := store.ReplaceRefreshToken(context.Background(), "old-token", "new-token", expires)
	if err != nil {
		t.Fatalf("ReplaceRefreshToken error: %v", err)
	}
	if affected != 1 {
		t.Fatalf("want 1 affected row, got %d", affected)
	}
}

func TestReplaceRefreshToken_Lost(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)UPDATE\s+refresh_tokens`).
		WithArgs("old-token", "new-token", expires).
		WillReturnResult(sqlmock.NewResult(0, 0))

	affected, err := store.ReplaceRefreshToken(context.Background(), "old-token", "new-token", expires)
	if err != nil {
		t.Fatalf("ReplaceRefreshToken error: %v", err)
	}
	if affected != 0 {
		t.Fatalf("want 0 affected rows, got %d", affected)
	}
}

func TestLatestRefreshForIdentity_NotFound(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)FROM\s+refresh_tokens\s+WHERE\s+identity_id\s*=\s*\$1\s+AND\s+expires_at\s*>\s*\$2`).
		WithArgs("id-1", now).
		WillReturnError(sql.ErrNoRows)

	_, err := store.LatestRefreshForIdentity(context.Background(), "id-1", now)
	if !errors.Is(err, credauth.ErrNoRows) {
		t.Fatalf("want credauth.ErrNoRows, got %v", err)
	}
}

func TestFindCode_PassesClock(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := now.Add(5 * time.Minute)
	rows := sqlmock.NewRows([]string{"subject", "code", "purpose", "expires_at"}).
		AddRow("id-1", "123456", "password_reset", expires)
	mock.ExpectQuery(`(?s)FROM\s+verification_codes\s+WHERE\s+code\s*=\s*\$1\s+AND\s+purpose\s*=\s*\$2\s+AND\s+expires_at\s*>\s*\$3`).
		WithArgs("123456", credauth.PurposePasswordReset, now).
		WillReturnRows(rows)

	got, err := store.FindCode(context.Background(), "123456", credauth.PurposePasswordReset, now)
	if err != nil {
		t.Fatalf("FindCode error: %v", err)
	}
	if got.Subject != "id-1" {
		t.Fatalf("unexpected code record: %+v", got)
	}
}

func TestDeleteCode_ReportsAffected(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)DELETE\s+FROM\s+verification_codes\s+WHERE\s+code\s*=\s*\$1\s+AND\s+purpose\s*=\s*\$2`).
		WithArgs("123456", credauth.PurposePasswordReset).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)DELETE\s+FROM\s+verification_codes`).
		WithArgs("123456", credauth.PurposePasswordReset).
		WillReturnResult(sqlmock.NewResult(0, 0))

	first, err := store.DeleteCode(context.Background(), "123456", credauth.PurposePasswordReset)
	if err != nil {
		t.Fatalf("DeleteCode error: %v", err)
	}
	second, err := store.DeleteCode(context.Background(), "123456", credauth.PurposePasswordReset)
	if err != nil {
		t.Fatalf("DeleteCode error: %v", err)
	}
	if first != 1 || second != 0 {
		t.Fatalf("want affected 1 then 0, got %d then %d", first, second)
	}
}

func TestInsertIdentity_DBError(t *testing.T) {
	store, mock, db := newStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+identities`).
		WillReturnError(errors.New("db down"))

	err := store.InsertIdentity(context.Background(), &credauth.Identity{ID: "id-1"})
	if err == nil {
		t.Fatalf("expected wrapped db error")
	}
}
