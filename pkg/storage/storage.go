// Package storage persists signed tokens between issuance and redemption.
//
// Tokens are grouped by epoch, a short fingerprint of the issuer
// commitments they were signed under, so that rotating the issuer key
// leaves old tokens unreachable instead of failing at redemption. Every
// store guarantees that Pop hands out each token at most once, even under
// concurrent callers.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/dleq"
	"github.com/alxdavids/cbs-client/pkg/token"
)

// Record is one stored token.
type Record struct {
	ID        string              `json:"id"`    // UUID
	Epoch     string              `json:"epoch"` // commitments fingerprint
	Token     token.StorableToken `json:"token"`
	CreatedAt time.Time           `json:"created_at"`
}

// NewRecord wraps st in a Record with a fresh ID.
func NewRecord(epoch string, st token.StorableToken, now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		Epoch:     epoch,
		Token:     st,
		CreatedAt: now,
	}
}

// Epoch returns the fingerprint of the commitments c: the first 8 bytes of
// SHA256(enc(G) || enc(H)) in hex.
func Epoch(c dleq.Commitments) string {
	h := sha256.New()
	h.Write(curve.EncodePoint(c.G, false))
	h.Write(curve.EncodePoint(c.H, false))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// TokenStore defines the interface for token storage
type TokenStore interface {
	// Put stores records. Storing an ID twice fails with ErrDuplicate.
	Put(records ...Record) error

	// Pop removes and returns the oldest record of an epoch.
	// It returns ErrEmpty when none is left.
	Pop(epoch string) (*Record, error)

	// Count returns the number of records stored for an epoch.
	Count(epoch string) (int, error)

	// PurgeOlderThan removes records created before cutoff, in any epoch.
	PurgeOlderThan(cutoff time.Time) (int, error)

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is healthy
	Ping() error
}

var (
	// ErrEmpty indicates no token is left for the epoch
	ErrEmpty = fmt.Errorf("no tokens available")

	// ErrDuplicate indicates a record ID is already stored
	ErrDuplicate = fmt.Errorf("token already stored")

	// ErrInvalidEpoch indicates an empty epoch or one containing a separator
	ErrInvalidEpoch = fmt.Errorf("invalid epoch")

	// ErrClosed indicates use of a closed store
	ErrClosed = fmt.Errorf("store is closed")
)
