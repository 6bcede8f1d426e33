package auth

import (
	"sync"
	"time"
)

// RevocationStore remembers logged-out token ids until the tokens would have
// expired anyway. Entries live in memory, so a restart forgets them.
type RevocationStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
}

func NewRevocationStore() *RevocationStore {
	return &RevocationStore{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke blocks jti until expiresAt.
func (s *RevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.entries[jti] = expiresAt
}

func (s *RevocationStore) IsRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[jti]
	if !ok {
		return false
	}
	if s.now().After(exp) {
		delete(s.entries, jti)
		return false
	}
	return true
}

func (s *RevocationStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	return len(s.entries)
}

// sweepLocked drops entries for tokens past their expiry.
func (s *RevocationStore) sweepLocked() {
	now := s.now()
	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
		}
	}
}
