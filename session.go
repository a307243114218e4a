package credauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kmarlow/credauth/internal/logging"
	"github.com/kmarlow/credauth/internal/rate"
	"github.com/kmarlow/credauth/jwt"
)

// loginLimiter bounds failed login attempts per key. Implementations live
// in internal/rate; a nil limiter disables throttling.
type loginLimiter interface {
	Check(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// SessionManager orchestrates login, refresh rotation with race detection,
// and logout. It holds no mutable state of its own; every durable fact
// lives in the injected stores, and the store's atomic conditional update
// is the only concurrency-control primitive in play.
type SessionManager struct {
	identities IdentityStore
	refresh    RefreshStore
	codec      *jwt.Codec
	hasher     PasswordHasher
	config     JWTConfig
	limiter    loginLimiter
	metrics    *Metrics
	log        logging.Logger
	now        func() time.Time
}

// Login authenticates email+password and opens a new refresh session.
// Unknown email and wrong password fail identically with
// [ErrInvalidCredentials] so accounts cannot be enumerated.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if m.limiter != nil {
		switch err := m.limiter.Check(ctx, email); {
		case errors.Is(err, rate.ErrLimited):
			m.metrics.inc(MetricLoginRateLimited)
			return nil, ErrRateLimited
		case err != nil:
			// Limiter backend trouble fails open; login still gets the
			// full credential check.
			m.log.Warn(ctx, "login limiter unavailable", "err", err)
		}
	}

	identity, err := m.identities.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			m.metrics.inc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, storeFailure(err)
	}

	ok, err := m.hasher.Verify(password, identity.PasswordHash)
	if err != nil || !ok {
		if m.limiter != nil {
			_ = m.limiter.Fail(ctx, email)
		}
		m.metrics.inc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}

	pair, record, err := m.issuePair(identity)
	if err != nil {
		return nil, err
	}
	if err := m.refresh.InsertRefreshRecord(ctx, record); err != nil {
		return nil, storeFailure(err)
	}

	if m.limiter != nil {
		_ = m.limiter.Reset(ctx, email)
	}
	m.metrics.inc(MetricLoginSuccess)
	m.metrics.inc(MetricSessionCreated)
	return pair, nil
}

// Refresh rotates presented into a fresh access+refresh pair.
//
// The rotation is a compare-and-swap at the store layer: the record's token
// column is replaced only while it still holds presented. When the swap
// reports zero affected rows a concurrent Refresh won the race first; the
// loser then adopts whatever live record the winner left behind instead of
// forcing a logout, or fails with [ErrSessionExpired] if the session was
// concurrently closed. A second refresh token is never minted for the same
// rotation epoch.
func (m *SessionManager) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	record, err := m.refresh.FindRefreshRecord(ctx, presented)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			m.metrics.inc(MetricRefreshFailure)
			return nil, ErrTokenNotFound
		}
		return nil, storeFailure(err)
	}

	now := m.now()
	if _, err := m.codec.ParseRefresh(presented); err != nil || now.After(record.ExpiresAt) {
		if delErr := m.refresh.DeleteRefreshRecord(ctx, presented); delErr != nil {
			m.log.Warn(ctx, "stale refresh record delete failed", "err", delErr)
		}
		m.metrics.inc(MetricRefreshFailure)
		return nil, ErrTokenExpired
	}

	identity, err := m.identities.FindIdentityByID(ctx, record.IdentityID)
	if err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, storeFailure(err)
	}

	pair, next, err := m.issuePair(identity)
	if err != nil {
		return nil, err
	}

	affected, err := m.refresh.ReplaceRefreshToken(ctx, presented, next.Token, next.ExpiresAt)
	if err != nil {
		return nil, storeFailure(err)
	}
	if affected == 0 {
		// Lost the rotation race. Trust whatever record the winner holds
		// now rather than retrying the swap; see the package design notes.
		m.metrics.inc(MetricRefreshRaceLost)
		current, err := m.refresh.LatestRefreshForIdentity(ctx, record.IdentityID, now)
		if err != nil {
			if errors.Is(err, ErrNoRows) {
				return nil, ErrSessionExpired
			}
			return nil, storeFailure(err)
		}
		m.metrics.inc(MetricRefreshSuccess)
		return &TokenPair{AccessToken: pair.AccessToken, RefreshToken: current.Token}, nil
	}

	m.metrics.inc(MetricRefreshSuccess)
	return pair, nil
}

// Logout deletes the refresh record if present. Absence is not an error.
func (m *SessionManager) Logout(ctx context.Context, refreshToken string) error {
	if err := m.refresh.DeleteRefreshRecord(ctx, refreshToken); err != nil && !errors.Is(err, ErrNoRows) {
		return storeFailure(err)
	}
	m.metrics.inc(MetricLogout)
	return nil
}

// IdentityFromAccessToken verifies an access token without touching the
// store and returns its claim set, or [ErrUnauthenticated].
func (m *SessionManager) IdentityFromAccessToken(token string) (*jwt.AccessClaims, error) {
	claims, err := m.codec.ParseAccess(token)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

func (m *SessionManager) issuePair(identity *Identity) (*TokenPair, *RefreshRecord, error) {
	access, err := m.codec.IssueAccess(identity.ID, identity.Email, string(identity.Role), m.config.AccessTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := m.codec.IssueRefresh(identity.ID, m.config.RefreshTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("issue refresh token: %w", err)
	}

	now := m.now()
	record := &RefreshRecord{
		Token:      refresh,
		IdentityID: identity.ID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.config.RefreshTTL),
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, record, nil
}

// storeFailure wraps store errors (timeouts, connectivity) so callers can
// distinguish retryable infrastructure trouble from business failures
// without seeing driver detail.
func storeFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
