package credauth

import (
	"context"
	"strconv"
	"strings"
)

// Candidate generation is deterministic: numeric suffixes first, then the
// suffix list, then the prefix list. The lists are fixed product copy.
const (
	numericSuffixMax    = 20
	suggestionSeparator = "_"
)

var (
	suggestionSuffixes = []string{"1", "2", "3", "2024", "official", "real", "tv", "world", "live", "star", "pro", "max", "plus"}
	suggestionPrefixes = []string{"the", "real", "official", "mr", "ms"}
)

// UsernameSuggester generates collision-free alternative usernames when a
// desired name is taken. Side-effect-free apart from one batch existence
// check against the identity store.
type UsernameSuggester struct {
	identities IdentityStore
}

// NewUsernameSuggester builds a suggester over the given identity store.
func NewUsernameSuggester(identities IdentityStore) *UsernameSuggester {
	return &UsernameSuggester{identities: identities}
}

// Suggest returns up to max free variants of base, in generation order.
// Taken names are filtered case-insensitively; the whole candidate pool is
// checked in a single store round trip.
func (s *UsernameSuggester) Suggest(ctx context.Context, base string, max int) ([]string, error) {
	base = strings.TrimSpace(base)
	if base == "" || max <= 0 {
		return nil, nil
	}

	pool := candidatePool(base)
	taken, err := s.identities.UsernamesTaken(ctx, pool)
	if err != nil {
		return nil, storeFailure(err)
	}

	lowered := make(map[string]struct{}, len(taken))
	for name := range taken {
		lowered[strings.ToLower(name)] = struct{}{}
	}

	var out []string
	for _, candidate := range pool {
		if _, exists := lowered[strings.ToLower(candidate)]; exists {
			continue
		}
		out = append(out, candidate)
		if len(out) == max {
			break
		}
	}
	return out, nil
}

func candidatePool(base string) []string {
	pool := make([]string, 0, numericSuffixMax+len(suggestionSuffixes)+len(suggestionPrefixes))
	for i := 1; i <= numericSuffixMax; i++ {
		pool = append(pool, base+strconv.Itoa(i))
	}
	for _, suffix := range suggestionSuffixes {
		pool = append(pool, base+suggestionSeparator+suffix)
	}
	for _, prefix := range suggestionPrefixes {
		pool = append(pool, prefix+suggestionSeparator+base)
	}
	return pool
}
