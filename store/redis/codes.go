// Package redis implements credauth.CodeStore on Redis. Code rows are
// values with a native TTL, so expiry needs no sweeper; single-use is the
// atomicity of DEL, and the per-subject index key makes supersession one
// lookup instead of a scan.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmarlow/credauth"
)

const (
	codeKeyPrefix    = "ca:code:"
	subjectKeyPrefix = "ca:codesub:"
)

// CodeStore stores verification codes in Redis. It covers only the code
// portion of CredentialStore; pair it with a relational store for
// identities and sessions via Builder.WithCodeStore.
type CodeStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewCodeStore binds a code store to the given client.
func NewCodeStore(client *redis.Client) *CodeStore {
	return &CodeStore{client: client, now: time.Now}
}

// WithClock replaces the time source. Test hook.
func (s *CodeStore) WithClock(now func() time.Time) *CodeStore {
	s.now = now
	return s
}

func codeKey(purpose credauth.Purpose, code string) string {
	return codeKeyPrefix + string(purpose) + ":" + code
}

func subjectKey(purpose credauth.Purpose, subject string) string {
	return subjectKeyPrefix + string(purpose) + ":" + subject
}

// InsertCode stores the code value and the subject index, both expiring at
// the record's deadline.
func (s *CodeStore) InsertCode(ctx context.Context, code *credauth.VerificationCode) error {
	ttl := code.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("insert code: expiry is in the past")
	}

	value := strconv.FormatInt(code.ExpiresAt.Unix(), 10) + "|" + code.Subject
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, codeKey(code.Purpose, code.Code), value, ttl)
	pipe.Set(ctx, subjectKey(code.Purpose, code.Subject), code.Code, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

// DeleteCodesForSubject drops the subject's current code of the purpose,
// if any. The subject index holds at most one code, so this is two DELs.
func (s *CodeStore) DeleteCodesForSubject(ctx context.Context, subject string, purpose credauth.Purpose) error {
	current, err := s.client.Get(ctx, subjectKey(purpose, subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("delete codes for subject: %w", err)
	}
	if err := s.client.Del(ctx, codeKey(purpose, current), subjectKey(purpose, subject)).Err(); err != nil {
		return fmt.Errorf("delete codes for subject: %w", err)
	}
	return nil
}

// FindCode returns the live code record or credauth.ErrNoRows. Redis TTLs
// already drop expired values; the explicit deadline check keeps an
// injected clock authoritative.
func (s *CodeStore) FindCode(ctx context.Context, code string, purpose credauth.Purpose, now time.Time) (*credauth.VerificationCode, error) {
	value, err := s.client.Get(ctx, codeKey(purpose, code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, credauth.ErrNoRows
		}
		return nil, fmt.Errorf("find code: %w", err)
	}

	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("find code: malformed value %q", value)
	}
	unix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("find code: malformed expiry in %q", value)
	}
	expiresAt := time.Unix(unix, 0).UTC()
	if !expiresAt.After(now) {
		return nil, credauth.ErrNoRows
	}

	return &credauth.VerificationCode{
		Subject:   parts[1],
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
	}, nil
}

// DeleteCode removes the code value and reports how many keys went away.
// DEL is atomic, so exactly one of N concurrent consumers observes 1.
func (s *CodeStore) DeleteCode(ctx context.Context, code string, purpose credauth.Purpose) (int64, error) {
	deleted, err := s.client.Del(ctx, codeKey(purpose, code)).Result()
	if err != nil {
		return 0, fmt.Errorf("delete code: %w", err)
	}
	return deleted, nil
}
