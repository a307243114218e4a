// Package memory implements credauth.CredentialStore with process-local
// maps. It exists for development servers, examples, and load tests; state
// dies with the process. Conditional writes get their atomicity from the
// store mutex, matching the semantics the SQL store derives from
// single-statement execution.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kmarlow/credauth"
)

// Store is an in-memory CredentialStore. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	identities map[string]*credauth.Identity
	refresh    map[string]*credauth.RefreshRecord
	codes      map[string]*credauth.VerificationCode

	seq   uint64
	order map[string]uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		identities: make(map[string]*credauth.Identity),
		refresh:    make(map[string]*credauth.RefreshRecord),
		codes:      make(map[string]*credauth.VerificationCode),
		order:      make(map[string]uint64),
	}
}

func codeKey(purpose credauth.Purpose, code string) string {
	return string(purpose) + ":" + code
}

func (s *Store) FindIdentityByEmail(_ context.Context, email string) (*credauth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if strings.EqualFold(identity.Email, email) {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, credauth.ErrNoRows
}

func (s *Store) FindIdentityByID(_ context.Context, id string) (*credauth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, credauth.ErrNoRows
	}
	copied := *identity
	return &copied, nil
}

func (s *Store) InsertIdentity(_ context.Context, identity *credauth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *identity
	s.identities[identity.ID] = &copied
	return nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return credauth.ErrNoRows
	}
	identity.PasswordHash = newHash
	return nil
}

func (s *Store) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return credauth.ErrNoRows
	}
	identity.EmailVerified = true
	return nil
}

func (s *Store) UsernamesTaken(_ context.Context, candidates []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[string]string, len(s.identities))
	for _, identity := range s.identities {
		existing[strings.ToLower(identity.Username)] = identity.Username
	}
	taken := make(map[string]struct{})
	for _, candidate := range candidates {
		if name, ok := existing[strings.ToLower(candidate)]; ok {
			taken[name] = struct{}{}
		}
	}
	return taken, nil
}

func (s *Store) InsertRefreshRecord(_ context.Context, record *credauth.RefreshRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.refresh[record.Token] = &copied
	s.seq++
	s.order[record.Token] = s.seq
	return nil
}

func (s *Store) FindRefreshRecord(_ context.Context, token string) (*credauth.RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.refresh[token]
	if !ok {
		return nil, credauth.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

// ReplaceRefreshToken swaps the token value only while the row still holds
// oldToken; the returned count is 0 when a concurrent caller won first.
func (s *Store) ReplaceRefreshToken(_ context.Context, oldToken, newToken string, expiresAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.refresh[oldToken]
	if !ok {
		return 0, nil
	}
	delete(s.refresh, oldToken)
	delete(s.order, oldToken)
	record.Token = newToken
	record.ExpiresAt = expiresAt
	s.refresh[newToken] = record
	s.seq++
	s.order[newToken] = s.seq
	return 1, nil
}

func (s *Store) DeleteRefreshRecord(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, token)
	delete(s.order, token)
	return nil
}

func (s *Store) DeleteRefreshRecordsForIdentity(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.refresh {
		if record.IdentityID == identityID {
			delete(s.refresh, token)
			delete(s.order, token)
		}
	}
	return nil
}

func (s *Store) LatestRefreshForIdentity(_ context.Context, identityID string, now time.Time) (*credauth.RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]string, 0, len(s.refresh))
	for token, record := range s.refresh {
		if record.IdentityID == identityID && record.ExpiresAt.After(now) {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil, credauth.ErrNoRows
	}
	sort.Slice(tokens, func(i, j int) bool { return s.order[tokens[i]] > s.order[tokens[j]] })
	copied := *s.refresh[tokens[0]]
	return &copied, nil
}

func (s *Store) InsertCode(_ context.Context, code *credauth.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *code
	s.codes[codeKey(code.Purpose, code.Code)] = &copied
	return nil
}

func (s *Store) DeleteCodesForSubject(_ context.Context, subject string, purpose credauth.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.codes {
		if record.Subject == subject && record.Purpose == purpose {
			delete(s.codes, key)
		}
	}
	return nil
}

func (s *Store) FindCode(_ context.Context, code string, purpose credauth.Purpose, now time.Time) (*credauth.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[codeKey(purpose, code)]
	if !ok || !record.ExpiresAt.After(now) {
		return nil, credauth.ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (s *Store) DeleteCode(_ context.Context, code string, purpose credauth.Purpose) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := codeKey(purpose, code)
	if _, ok := s.codes[key]; !ok {
		return 0, nil
	}
	delete(s.codes, key)
	return 1, nil
}
