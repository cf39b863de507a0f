package issuertest

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SpentSet remembers redeemed token preimages.
type SpentSet struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]time.Time // preimage -> expiry, zero for never
	ttl     time.Duration
	swept   time.Time
}

// NewSpentSet returns an empty set. A zero ttl keeps entries forever.
func NewSpentSet(clk clock.Clock, ttl time.Duration) *SpentSet {
	return &SpentSet{
		clock:   clk,
		entries: make(map[string]time.Time),
		ttl:     ttl,
	}
}

// Seen reports whether preimage was already spent and marks it spent.
// Expired entries are swept at most once per ttl.
func (s *SpentSet) Seen(preimage []byte) bool {
	key := hex.EncodeToString(preimage)
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl > 0 && now.Sub(s.swept) >= s.ttl {
		s.sweep(now)
	}

	if expiry, ok := s.entries[key]; ok && (expiry.IsZero() || now.Before(expiry)) {
		return true
	}

	var expiry time.Time
	if s.ttl > 0 {
		expiry = now.Add(s.ttl)
	}
	s.entries[key] = expiry
	return false
}

// Cleanup removes expired entries.
func (s *SpentSet) Cleanup() {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep(now)
}

func (s *SpentSet) sweep(now time.Time) {
	for key, expiry := range s.entries {
		if !expiry.IsZero() && !now.Before(expiry) {
			delete(s.entries, key)
		}
	}
	s.swept = now
}

// Size returns the current number of entries.
func (s *SpentSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
