package storage

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore implements TokenStore using in-memory storage
// This is suitable for development and testing; tokens are lost on exit
type MemoryStore struct {
	mu     sync.Mutex
	queues map[string][]*Record
	ids    map[string]struct{}
	closed bool
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string][]*Record),
		ids:    make(map[string]struct{}),
	}
}

func validEpoch(epoch string) bool {
	return epoch != "" && !strings.Contains(epoch, keySep)
}

// Put stores records in order
func (s *MemoryStore) Put(records ...Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	for _, r := range records {
		if !validEpoch(r.Epoch) {
			return ErrInvalidEpoch
		}
		if _, exists := s.ids[r.ID]; exists {
			return ErrDuplicate
		}
	}

	for _, r := range records {
		// Store a copy to avoid race conditions
		recCopy := r
		s.queues[r.Epoch] = append(s.queues[r.Epoch], &recCopy)
		s.ids[r.ID] = struct{}{}
	}
	return nil
}

// Pop removes and returns the oldest record of an epoch
func (s *MemoryStore) Pop(epoch string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	q := s.queues[epoch]
	if len(q) == 0 {
		return nil, ErrEmpty
	}

	rec := q[0]
	q[0] = nil
	s.queues[epoch] = q[1:]
	delete(s.ids, rec.ID)

	return rec, nil
}

// Count returns the number of records for an epoch
func (s *MemoryStore) Count(epoch string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	return len(s.queues[epoch]), nil
}

// PurgeOlderThan removes records created before cutoff
func (s *MemoryStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	removed := 0
	for epoch, q := range s.queues {
		kept := q[:0]
		for _, rec := range q {
			if rec.CreatedAt.Before(cutoff) {
				delete(s.ids, rec.ID)
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.queues, epoch)
		} else {
			s.queues[epoch] = kept
		}
	}
	return removed, nil
}

// Close closes the store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

// Stats returns storage statistics for monitoring
func (s *MemoryStore) Stats() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[string]int, len(s.queues))
	for epoch, q := range s.queues {
		stats[epoch] = len(q)
	}
	return stats
}
