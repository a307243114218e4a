package credauth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// memoryStore is an in-memory CredentialStore for engine tests. Conditional
// updates are serialized by the mutex, which gives the same atomicity the
// SQL store derives from single-statement execution.
type memoryStore struct {
	mu sync.Mutex

	identities map[string]*Identity      // by ID
	refresh    map[string]*RefreshRecord // by token value
	codes      map[string]*VerificationCode

	refreshSeq     uint64            // insertion order, newest wins ties
	refreshOrder   map[string]uint64 // token -> seq
	takenCallCount int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		identities:   make(map[string]*Identity),
		refresh:      make(map[string]*RefreshRecord),
		codes:        make(map[string]*VerificationCode),
		refreshOrder: make(map[string]uint64),
	}
}

func codeMapKey(purpose Purpose, code string) string {
	return string(purpose) + ":" + code
}

func (s *memoryStore) FindIdentityByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if strings.EqualFold(identity.Email, email) {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, ErrNoRows
}

func (s *memoryStore) FindIdentityByID(_ context.Context, id string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, ErrNoRows
	}
	copied := *identity
	return &copied, nil
}

func (s *memoryStore) InsertIdentity(_ context.Context, identity *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *identity
	s.identities[identity.ID] = &copied
	return nil
}

func (s *memoryStore) UpdatePasswordHash(_ context.Context, id, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return ErrNoRows
	}
	identity.PasswordHash = newHash
	return nil
}

func (s *memoryStore) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return ErrNoRows
	}
	identity.EmailVerified = true
	return nil
}

func (s *memoryStore) UsernamesTaken(_ context.Context, candidates []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.takenCallCount++

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

func (s *memoryStore) InsertRefreshRecord(_ context.Context, record *RefreshRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	s.refresh[record.Token] = &copied
	s.refreshSeq++
	s.refreshOrder[record.Token] = s.refreshSeq
	return nil
}

func (s *memoryStore) FindRefreshRecord(_ context.Context, token string) (*RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.refresh[token]
	if !ok {
		return nil, ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (s *memoryStore) ReplaceRefreshToken(_ context.Context, oldToken, newToken string, expiresAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.refresh[oldToken]
	if !ok {
		return 0, nil
	}
	delete(s.refresh, oldToken)
	delete(s.refreshOrder, oldToken)

	record.Token = newToken
	record.ExpiresAt = expiresAt
	s.refresh[newToken] = record
	s.refreshSeq++
	s.refreshOrder[newToken] = s.refreshSeq
	return 1, nil
}

func (s *memoryStore) DeleteRefreshRecord(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, token)
	delete(s.refreshOrder, token)
	return nil
}

func (s *memoryStore) DeleteRefreshRecordsForIdentity(_ context.Context, identityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, record := range s.refresh {
		if record.IdentityID == identityID {
			delete(s.refresh, token)
			delete(s.refreshOrder, token)
		}
	}
	return nil
}

func (s *memoryStore) LatestRefreshForIdentity(_ context.Context, identityID string, now time.Time) (*RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens := make([]string, 0, len(s.refresh))
	for token, record := range s.refresh {
		if record.IdentityID == identityID && record.ExpiresAt.After(now) {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil, ErrNoRows
	}
	sort.Slice(tokens, func(i, j int) bool {
		return s.refreshOrder[tokens[i]] > s.refreshOrder[tokens[j]]
	})
	copied := *s.refresh[tokens[0]]
	return &copied, nil
}

func (s *memoryStore) InsertCode(_ context.Context, code *VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *code
	s.codes[codeMapKey(code.Purpose, code.Code)] = &copied
	return nil
}

func (s *memoryStore) DeleteCodesForSubject(_ context.Context, subject string, purpose Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.codes {
		if record.Subject == subject && record.Purpose == purpose {
			delete(s.codes, key)
		}
	}
	return nil
}

func (s *memoryStore) FindCode(_ context.Context, code string, purpose Purpose, now time.Time) (*VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.codes[codeMapKey(purpose, code)]
	if !ok || !record.ExpiresAt.After(now) {
		return nil, ErrNoRows
	}
	copied := *record
	return &copied, nil
}

func (s *memoryStore) DeleteCode(_ context.Context, code string, purpose Purpose) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := codeMapKey(purpose, code)
	if _, ok := s.codes[key]; !ok {
		return 0, nil
	}
	delete(s.codes, key)
	return 1, nil
}

func (s *memoryStore) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refresh)
}

func (s *memoryStore) soleRefreshToken(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.refresh) != 1 {
		t.Fatalf("want exactly one refresh record, have %d", len(s.refresh))
	}
	for token := range s.refresh {
		return token
	}
	return ""
}

// plainHasher skips argon2 work so engine tests stay fast. The session
// layer only needs Hash/Verify to agree.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain$" + password, nil }

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "plain$"+password, nil
}

// captureSender records deliveries.
type captureSender struct {
	mu    sync.Mutex
	sent  []string // recipient
	body  []string
	fail  bool
	count int
}

func (s *captureSender) Send(_ context.Context, to, _, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	if s.fail {
		return errors.New("smtp down")
	}
	s.sent = append(s.sent, to)
	s.body = append(s.body, htmlBody)
	return nil
}

func (s *captureSender) lastBody(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.body) == 0 {
		t.Fatal("no email was delivered")
	}
	return s.body[len(s.body)-1]
}

// testClock is a mutable time source shared by the engine and assertions.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("fedcba9876543210fedcba9876543210")
	cfg.JWT.Issuer = "credauth-test"
	return cfg
}

type engineFixture struct {
	engine *Engine
	store  *memoryStore
	sender *captureSender
	clock  *testClock
}

func newEngineFixture(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newMemoryStore()
	sender := &captureSender{}
	clock := newTestClock()

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithEmailSender(sender).
		WithHasher(plainHasher{}).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &engineFixture{engine: engine, store: store, sender: sender, clock: clock}
}

// registerUser enrolls a ready-to-login identity born well before any age
// gate.
func (f *engineFixture) registerUser(t *testing.T, email, username, password string) *Identity {
	t.Helper()
	result, err := f.engine.Register(context.Background(), RegisterInput{
		Email:    email,
		Username: username,
		Password: password,
		Birth:    BirthDate{Date: time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return result.Identity
}
