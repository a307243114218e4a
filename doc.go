// Package credauth implements the credential-session lifecycle for a
// multi-user application: short-lived JWT access tokens, longer-lived
// rotating refresh tokens, and single-use time-boxed verification codes
// (email verification links, password-reset OTPs).
//
// The package is designed for concurrent server workloads: every manager is
// safe to call from multiple goroutines after construction through
// [Builder.Build]. No in-process locks guard durable state; correctness
// under concurrent refresh rotation and code consumption rests entirely on
// the store's atomic conditional writes (affected-row counts).
//
// # Architecture boundaries
//
// credauth is the public surface. It exposes [Engine], [Builder], [Config],
// the manager types, and the [CredentialStore] and [EmailSender] contracts.
// Token signing lives in jwt/, password hashing in password/, store
// implementations in store/postgres and store/redis, and rate limiting and
// logging glue under internal/.
//
// # What this package must NOT do
//
//   - Own HTTP framing, status codes, or headers; callers do transport.
//   - Implement storage engines; it speaks only through [CredentialStore].
//   - Hold ambient singletons; the store and clock are injected once.
//
// # Trust model
//
// Access tokens are stateless and cannot be revoked before natural expiry.
// Refresh tokens are stateful and rotated on every use; a rotated-away
// token never validates again.
package credauth
