package tokens

import (
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/guarzo/sessionkit/common"
	"github.com/guarzo/sessionkit/common/model"
)

// Store owns the credential pair: the in-memory copy that requests read,
// and a durable mirror that survives a restart. Nothing else writes to
// either; the refresh coordinator is the only mutator after startup.
type Store struct {
	mu      sync.RWMutex
	storage common.Storage
	key     string
	pair    *oauth2.Token
	now     func() time.Time
}

// NewStore constructs a Store over the given durable storage. The store
// starts absent; call Load once at startup to hydrate from the mirror.
func NewStore(storage common.Storage, key string) *Store {
	return &Store{
		storage: storage,
		key:     key,
		now:     time.Now,
	}
}

// Load hydrates the in-memory pair from durable storage. A missing or
// unreadable record leaves the store absent; Load never fails.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, found := s.storage.Get(s.key)
	if !found {
		return
	}

	var stored model.StoredCredentials
	if err := model.JSONUnmarshal(data, &stored); err != nil {
		return
	}
	if stored.AccessToken == "" && stored.RefreshToken == "" {
		return
	}

	expiresAt, err := time.Parse(time.RFC3339, stored.ExpiresAt)
	if err != nil {
		return
	}

	s.pair = &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		Expiry:       expiresAt,
	}
}

// Save replaces the pair wholesale, durable mirror first so a reload can
// never observe a token the mirror would lose.
func (s *Store) Save(tok *oauth2.Token) {
	if tok == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := model.StoredCredentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.Format(time.RFC3339),
	}
	if data, err := json.Marshal(stored); err == nil {
		s.storage.Set(s.key, data)
	}

	copied := *tok
	s.pair = &copied
}

// Clear removes both copies. Idempotent.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.storage.Remove(s.key)
	s.pair = nil
}

// IsExpired reports whether no pair is stored or its expiry has passed.
func (s *Store) IsExpired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pair == nil {
		return true
	}
	return !s.now().Before(s.pair.Expiry)
}

// TimeUntilExpiry returns how long the access credential remains valid,
// zero when absent or already expired.
func (s *Store) TimeUntilExpiry() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pair == nil {
		return 0
	}
	remaining := s.pair.Expiry.Sub(s.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Current returns a momentary copy of the pair, or nil when absent. Callers
// must not hold onto it across a refresh.
func (s *Store) Current() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pair == nil {
		return nil
	}
	copied := *s.pair
	return &copied
}

// RefreshToken returns the current refresh credential, empty when absent.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pair == nil {
		return ""
	}
	return s.pair.RefreshToken
}

// SetNowForTest overrides the store's clock.
func (s *Store) SetNowForTest(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
