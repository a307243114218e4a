// Package postgres implements credauth.CredentialStore over a relational
// store reached through database/sql (register the pgx stdlib driver:
// jackc/pgx/v5/stdlib). The conditional writes the session and code layers
// depend on are plain UPDATE/DELETE statements whose affected-row counts
// are surfaced to the caller.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kmarlow/credauth"
)

// DBTX is the query surface the store needs, satisfied by *sql.DB and
// *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a CredentialStore over three tables: identities,
// refresh_tokens, and verification_codes.
type Store struct {
	db DBTX
}

// NewStore binds a store to the given DBTX.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

const identityColumns = "id, email, username, password_hash, role, email_verified, birth_date, created_at"

func (s *Store) scanIdentity(row *sql.Row) (*credauth.Identity, error) {
	var identity credauth.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.Username,
		&identity.PasswordHash,
		&identity.Role,
		&identity.EmailVerified,
		&identity.BirthDate,
		&identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credauth.ErrNoRows
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	return &identity, nil
}

// FindIdentityByEmail looks an identity up case-insensitively by email.
func (s *Store) FindIdentityByEmail(ctx context.Context, email string) (*credauth.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE lower(email) = lower($1)
	`
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, email))
}

// FindIdentityByID looks an identity up by primary key.
func (s *Store) FindIdentityByID(ctx context.Context, id string) (*credauth.Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM identities
		WHERE id = $1
	`
	return s.scanIdentity(s.db.QueryRowContext(ctx, query, id))
}

// InsertIdentity persists a newly registered identity.
func (s *Store) InsertIdentity(ctx context.Context, identity *credauth.Identity) error {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.Username,
		identity.PasswordHash,
		identity.Role,
		identity.EmailVerified,
		identity.BirthDate,
		identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces only the password hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, id, newHash string) error {
	query := `
		UPDATE identities
		SET password_hash = $2
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, id, newHash); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}

// MarkEmailVerified flips the verification flag.
func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	query := `
		UPDATE identities
		SET email_verified = TRUE
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return nil
}

// UsernamesTaken reports which candidates already exist, case-insensitively,
// in one query.
func (s *Store) UsernamesTaken(ctx context.Context, candidates []string) (map[string]struct{}, error) {
	if len(candidates) == 0 {
		return map[string]struct{}{}, nil
	}

	placeholders := make([]string, len(candidates))
	args := make([]any, len(candidates))
	for i, candidate := range candidates {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = strings.ToLower(candidate)
	}
	query := `
		SELECT username
		FROM identities
		WHERE lower(username) IN (` + strings.Join(placeholders, ", ") + `)
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch username check: %w", err)
	}
	defer rows.Close()

	taken := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		taken[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch username check: %w", err)
	}
	return taken, nil
}

// InsertRefreshRecord stores a new refresh session row.
func (s *Store) InsertRefreshRecord(ctx context.Context, record *credauth.RefreshRecord) error {
	query := `
		INSERT INTO refresh_tokens (token, identity_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, record.Token, record.IdentityID, record.CreatedAt, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert refresh record: %w", err)
	}
	return nil
}

// FindRefreshRecord returns the row keyed by the token value.
func (s *Store) FindRefreshRecord(ctx context.Context, token string) (*credauth.RefreshRecord, error) {
	query := `
		SELECT token, identity_id, created_at, expires_at
		FROM refresh_tokens
		WHERE token = $1
	`
	var record credauth.RefreshRecord
	err := s.db.QueryRowContext(ctx, query, token).
		Scan(&record.Token, &record.IdentityID, &record.CreatedAt, &record.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credauth.ErrNoRows
		}
		return nil, fmt.Errorf("find refresh record: %w", err)
	}
	return &record, nil
}

// ReplaceRefreshToken is the rotation compare-and-swap: the row is updated
// only while it still holds oldToken, and the affected count tells the
// caller whether it won the race.
func (s *Store) ReplaceRefreshToken(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET token = $2, created_at = NOW(), expires_at = $3
		WHERE token = $1
	`
	result, err := s.db.ExecContext(ctx, query, oldToken, newToken, expiresAt)
	if err != nil {
		return 0, fmt.Errorf("replace refresh token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("replace refresh token: %w", err)
	}
	return affected, nil
}

// DeleteRefreshRecord removes a session row. Absence is not an error.
func (s *Store) DeleteRefreshRecord(ctx context.Context, token string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE token = $1
	`
	if _, err := s.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("delete refresh record: %w", err)
	}
	return nil
}

// DeleteRefreshRecordsForIdentity closes every session for the identity.
func (s *Store) DeleteRefreshRecordsForIdentity(ctx context.Context, identityID string) error {
	query := `
		DELETE FROM refresh_tokens
		WHERE identity_id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, identityID); err != nil {
		return fmt.Errorf("delete refresh records: %w", err)
	}
	return nil
}

// LatestRefreshForIdentity returns the newest unexpired session row for the
// identity, or credauth.ErrNoRows.
func (s *Store) LatestRefreshForIdentity(ctx context.Context, identityID string, now time.Time) (*credauth.RefreshRecord, error) {
	query := `
		SELECT token, identity_id, created_at, expires_at
		FROM refresh_tokens
		WHERE identity_id = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var record credauth.RefreshRecord
	err := s.db.QueryRowContext(ctx, query, identityID, now).
		Scan(&record.Token, &record.IdentityID, &record.CreatedAt, &record.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credauth.ErrNoRows
		}
		return nil, fmt.Errorf("latest refresh for identity: %w", err)
	}
	return &record, nil
}

// InsertCode stores a verification code row.
func (s *Store) InsertCode(ctx context.Context, code *credauth.VerificationCode) error {
	query := `
		INSERT INTO verification_codes (subject, code, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.ExecContext(ctx, query, code.Subject, code.Code, code.Purpose, code.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

// DeleteCodesForSubject removes all codes of a purpose for the subject
// (supersede semantics).
func (s *Store) DeleteCodesForSubject(ctx context.Context, subject string, purpose credauth.Purpose) error {
	query := `
		DELETE FROM verification_codes
		WHERE subject = $1 AND purpose = $2
	`
	if _, err := s.db.ExecContext(ctx, query, subject, purpose); err != nil {
		return fmt.Errorf("delete codes for subject: %w", err)
	}
	return nil
}

// FindCode returns the unexpired code row, or credauth.ErrNoRows.
func (s *Store) FindCode(ctx context.Context, code string, purpose credauth.Purpose, now time.Time) (*credauth.VerificationCode, error) {
	query := `
		SELECT subject, code, purpose, expires_at
		FROM verification_codes
		WHERE code = $1 AND purpose = $2 AND expires_at > $3
	`
	var record credauth.VerificationCode
	err := s.db.QueryRowContext(ctx, query, code, purpose, now).
		Scan(&record.Subject, &record.Code, &record.Purpose, &record.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, credauth.ErrNoRows
		}
		return nil, fmt.Errorf("find code: %w", err)
	}
	return &record, nil
}

// DeleteCode removes one code row and reports how many rows went away;
// exactly one concurrent consumer observes 1.
func (s *Store) DeleteCode(ctx context.Context, code string, purpose credauth.Purpose) (int64, error) {
	query := `
		DELETE FROM verification_codes
		WHERE code = $1 AND purpose = $2
	`
	result, err := s.db.ExecContext(ctx, query, code, purpose)
	if err != nil {
		return 0, fmt.Errorf("delete code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete code: %w", err)
	}
	return affected, nil
}
