package credauth

import (
	"time"

	"github.com/kmarlow/credauth/internal/logging"
	"github.com/kmarlow/credauth/jwt"
)

// Engine is the assembled library surface. Its managers share one store,
// one codec, and one clock; each is independently usable and all are safe
// for concurrent callers after [Builder.Build].
type Engine struct {
	config Config

	store     CredentialStore
	sender    EmailSender
	hasher    PasswordHasher
	sessions  *SessionManager
	codes     *CodeManager
	usernames *UsernameSuggester
	metrics   *Metrics
	log       logging.Logger
	now       func() time.Time
}

// Sessions returns the session lifecycle manager.
func (e *Engine) Sessions() *SessionManager { return e.sessions }

// Codes returns the verification-code manager.
func (e *Engine) Codes() *CodeManager { return e.codes }

// Usernames returns the username suggestion engine.
func (e *Engine) Usernames() *UsernameSuggester { return e.usernames }

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() Snapshot {
	if e == nil {
		return Snapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// IdentityFromAccessToken is a convenience passthrough to the session
// manager's pure access-token verification.
func (e *Engine) IdentityFromAccessToken(token string) (*jwt.AccessClaims, error) {
	return e.sessions.IdentityFromAccessToken(token)
}
