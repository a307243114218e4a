package credauth

import (
	"context"
	"time"
)

// Role is the coarse authorization level carried in access-token claims.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is a registered account as the store returns it. The session
// layer reads identities; it never mutates password or identity fields
// directly (password changes go through [Engine.ConfirmPasswordReset]).
type Identity struct {
	ID            string
	Email         string
	Username      string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	BirthDate     time.Time
	CreatedAt     time.Time
}

// RefreshRecord is one live refresh token row. Multiple records may exist
// per identity (one per device session); the token value itself is the key.
type RefreshRecord struct {
	Token      string
	IdentityID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Purpose tags a verification code with the flow that issued it.
type Purpose string

const (
	PurposeEmailVerify   Purpose = "email-verify"
	PurposePasswordReset Purpose = "password-reset"
)

// VerificationCode is a single-use, time-boxed secret bound to a subject
// (identity ID or email address) and a purpose.
type VerificationCode struct {
	Subject   string
	Code      string
	Purpose   Purpose
	ExpiresAt time.Time
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// IdentityStore is the account slice of [CredentialStore].
type IdentityStore interface {
	FindIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	FindIdentityByID(ctx context.Context, id string) (*Identity, error)
	InsertIdentity(ctx context.Context, identity *Identity) error
	UpdatePasswordHash(ctx context.Context, id, newHash string) error
	MarkEmailVerified(ctx context.Context, id string) error

	// UsernamesTaken reports which of the candidates are already in use,
	// case-insensitively, in a single round trip.
	UsernamesTaken(ctx context.Context, candidates []string) (map[string]struct{}, error)
}

// RefreshStore is the refresh-token slice of [CredentialStore].
//
// ReplaceRefreshToken is the concurrency-control primitive the session
// layer relies on: it must atomically swap the stored token value only if
// the row still holds oldToken, and report the affected-row count so a
// lost race is observable. Find operations return [ErrNoRows] (possibly
// wrapped) when no row matches.
type RefreshStore interface {
	InsertRefreshRecord(ctx context.Context, record *RefreshRecord) error
	FindRefreshRecord(ctx context.Context, token string) (*RefreshRecord, error)
	ReplaceRefreshToken(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (int64, error)
	DeleteRefreshRecord(ctx context.Context, token string) error
	DeleteRefreshRecordsForIdentity(ctx context.Context, identityID string) error

	// LatestRefreshForIdentity returns the most recently created record for
	// the identity whose ExpiresAt is after now, or ErrNoRows.
	LatestRefreshForIdentity(ctx context.Context, identityID string, now time.Time) (*RefreshRecord, error)
}

// CodeStore is the verification-code slice of [CredentialStore].
// DeleteCode must report the affected-row count: the single-use guarantee
// for concurrent consumers rests on exactly one delete observing 1.
type CodeStore interface {
	InsertCode(ctx context.Context, code *VerificationCode) error
	DeleteCodesForSubject(ctx context.Context, subject string, purpose Purpose) error
	FindCode(ctx context.Context, code string, purpose Purpose, now time.Time) (*VerificationCode, error)
	DeleteCode(ctx context.Context, code string, purpose Purpose) (int64, error)
}

// CredentialStore is the durable-state contract the engine depends on.
// Implementations must provide read-after-write consistency per connection
// and atomic conditional writes with visible affected-row counts. See
// store/postgres for the reference implementation.
type CredentialStore interface {
	IdentityStore
	RefreshStore
	CodeStore
}

// EmailSender delivers verification and reset emails. Delivery failure is
// never fatal to the triggering operation; the engine logs it and surfaces
// an EmailSent=false flag instead.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// PasswordHasher is the one-way password function. The default is argon2id
// (package password); any scheme with a verify operation fits.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}
