package credauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BirthDate is the normalized birth-date input. Callers supply either the
// explicit Date or the Day/Month/Year triple; the union is resolved once at
// the boundary into a canonical date before any validation runs, so both
// paths always agree.
type BirthDate struct {
	Date  time.Time
	Day   int
	Month int
	Year  int
}

func (b BirthDate) resolve() (time.Time, error) {
	if !b.Date.IsZero() {
		return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	if b.Day == 0 && b.Month == 0 && b.Year == 0 {
		return time.Time{}, ErrBirthDateInvalid
	}
	resolved := time.Date(b.Year, time.Month(b.Month), b.Day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components (Feb 30 -> Mar 2), so a
	// round-trip mismatch means the triple was not a real calendar date.
	if resolved.Year() != b.Year || resolved.Month() != time.Month(b.Month) || resolved.Day() != b.Day {
		return time.Time{}, ErrBirthDateInvalid
	}
	return resolved, nil
}

func yearsBetween(birth, today time.Time) int {
	years := today.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(today) {
		years--
	}
	return years
}

// RegisterInput holds everything needed to enroll a new identity.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Birth    BirthDate
}

// RegisterResult reports the created identity and whether the verification
// email actually went out. EmailSent=false never fails the registration.
type RegisterResult struct {
	Identity  *Identity
	EmailSent bool
}

// Register validates, hashes, and persists a new identity, then kicks off
// email verification. Username conflicts come back as a
// [UsernameConflictError] carrying free alternatives.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	birth, err := input.Birth.resolve()
	if err != nil {
		return nil, err
	}
	if yearsBetween(birth, e.now()) < e.config.Account.MinimumAge {
		return nil, ErrUnderage
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	if _, err := e.store.FindIdentityByEmail(ctx, email); err == nil {
		e.metrics.inc(MetricRegisterConflict)
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNoRows) {
		return nil, storeFailure(err)
	}

	taken, err := e.store.UsernamesTaken(ctx, []string{username})
	if err != nil {
		return nil, storeFailure(err)
	}
	if len(taken) > 0 {
		e.metrics.inc(MetricRegisterConflict)
		suggestions, err := e.usernames.Suggest(ctx, username, e.config.Account.SuggestionLimit)
		if err != nil {
			e.log.Warn(ctx, "username suggestion failed", "err", err)
		}
		return nil, &UsernameConflictError{Username: username, Suggestions: suggestions}
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := &Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         RoleUser,
		BirthDate:    birth,
		CreatedAt:    e.now(),
	}
	if err := e.store.InsertIdentity(ctx, identity); err != nil {
		return nil, storeFailure(err)
	}

	e.metrics.inc(MetricRegisterSuccess)
	sent := e.sendVerificationEmail(ctx, identity)
	return &RegisterResult{Identity: identity, EmailSent: sent}, nil
}
