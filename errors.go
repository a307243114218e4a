package credauth

import "errors"

var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenNotFound means the presented refresh token has no live record:
	// already rotated away, reused, or garbage. The cases are deliberately
	// indistinguishable to the caller.
	ErrTokenNotFound = errors.New("refresh token not found")
	// ErrTokenExpired means the presented refresh token failed signature or
	// expiry verification; its record has been deleted.
	ErrTokenExpired = errors.New("refresh token expired or invalid")
	// ErrSessionExpired means a rotation race was lost and no live session
	// remains for the identity (concurrent logout).
	ErrSessionExpired = errors.New("session expired")
	// ErrCodeInvalid covers missing, expired, superseded, and already-consumed
	// verification codes uniformly.
	ErrCodeInvalid = errors.New("invalid or expired code")
	// ErrIdentityNotFound is returned when an identity referenced by a live
	// token or code no longer exists.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrUnauthenticated is returned for access tokens that fail verification.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrStoreUnavailable wraps timeouts and connectivity failures from the
	// credential store. Safe for the caller to retry; never retried here.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEmailTaken is returned by Register when the email already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUsernameTaken is returned by Register when the username is in use.
	// It is wrapped by a [UsernameConflictError] carrying free alternatives.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUnderage is returned by Register when the birth date yields an age
	// below the minimum.
	ErrUnderage = errors.New("minimum age not met")
	// ErrBirthDateInvalid is returned when neither a full date nor a complete
	// day/month/year triple resolves to a real calendar date.
	ErrBirthDateInvalid = errors.New("invalid birth date")
	// ErrRateLimited is returned when the login attempt budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrConfig marks construction-time configuration failures (missing or
	// weak signing secrets, bad TTLs). Fatal at startup, never per-request.
	ErrConfig = errors.New("invalid configuration")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
)

// ErrNoRows is the store-level sentinel for an absent row. Store
// implementations return it (possibly wrapped) from every find operation;
// managers translate it into the business-level sentinel for the call site.
var ErrNoRows = errors.New("credauth: no rows")

// UsernameConflictError wraps ErrUsernameTaken and carries collision-free
// alternatives generated by [SuggestUsernames].
type UsernameConflictError struct {
	Username    string
	Suggestions []string
}

func (e *UsernameConflictError) Error() string { return ErrUsernameTaken.Error() }

// Unwrap lets errors.Is(err, ErrUsernameTaken) hold.
func (e *UsernameConflictError) Unwrap() error { return ErrUsernameTaken }
