package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	keySep       = "|"
	tokenPrefix  = "tok" + keySep
	indexPrefix  = "id" + keySep
	sequenceKey  = "meta:token_seq"
	seqBandwidth = 1000

	// maxConflictRetries bounds retries of a Pop that lost a transaction race.
	maxConflictRetries = 16
)

// BadgerStore implements TokenStore on top of badger.
//
// Layout:
//
//	tok|<epoch>|<seq>|<id> -> json(Record)
//	id|<id>                -> tok key
//
// seq comes from a badger sequence and is zero padded, so iterating a
// tok|<epoch>| prefix yields records in insertion order. Pops are serialized
// within the process; a Pop that still loses a transaction race at commit
// is retried.
type BadgerStore struct {
	db    *badger.DB
	seq   *badger.Sequence
	popMu sync.Mutex
}

// OpenBadgerStore opens or creates a store in dir. An empty dir keeps the
// database in memory.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("token sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq}, nil
}

func epochPrefix(epoch string) []byte {
	return []byte(tokenPrefix + epoch + keySep)
}

func tokenKey(epoch string, seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s%s%020d%s%s", tokenPrefix, epoch, keySep, seq, keySep, id))
}

func indexKey(id string) []byte {
	return []byte(indexPrefix + id)
}

// Put stores records in one transaction
func (s *BadgerStore) Put(records ...Record) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	for _, r := range records {
		if !validEpoch(r.Epoch) {
			return ErrInvalidEpoch
		}
		if r.ID == "" || strings.Contains(r.ID, keySep) {
			return fmt.Errorf("invalid record id %q", r.ID)
		}
	}

	// Sequence numbers are leased outside the write transaction.
	seqs := make([]uint64, len(records))
	for i := range records {
		n, err := s.seq.Next()
		if err != nil {
			return err
		}
		seqs[i] = n
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i, r := range records {
			_, err := txn.Get(indexKey(r.ID))
			if err == nil {
				return ErrDuplicate
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			val, err := json.Marshal(r)
			if err != nil {
				return err
			}

			key := tokenKey(r.Epoch, seqs[i], r.ID)
			if err := txn.Set(key, val); err != nil {
				return err
			}
			if err := txn.Set(indexKey(r.ID), key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pop removes and returns the oldest record of an epoch
func (s *BadgerStore) Pop(epoch string) (*Record, error) {
	if s.db.IsClosed() {
		return nil, ErrClosed
	}
	if !validEpoch(epoch) {
		return nil, ErrInvalidEpoch
	}

	s.popMu.Lock()
	defer s.popMu.Unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		rec, err := s.popOnce(epochPrefix(epoch))
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return rec, err
	}
	return nil, fmt.Errorf("pop token: %w", badger.ErrConflict)
}

func (s *BadgerStore) popOnce(prefix []byte) (*Record, error) {
	var rec Record
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return ErrEmpty
		}

		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(val, &rec); err != nil {
			return fmt.Errorf("decode record %s: %w", key, err)
		}

		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(rec.ID))
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Count returns the number of records for an epoch
func (s *BadgerStore) Count(epoch string) (int, error) {
	if s.db.IsClosed() {
		return 0, ErrClosed
	}
	if !validEpoch(epoch) {
		return 0, ErrInvalidEpoch
	}

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = epochPrefix(epoch)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// PurgeOlderThan removes records created before cutoff. Keys are collected
// in a read-only pass and deleted through a WriteBatch, which commits in
// as many transactions as the batch needs.
func (s *BadgerStore) PurgeOlderThan(cutoff time.Time) (int, error) {
	if s.db.IsClosed() {
		return 0, ErrClosed
	}

	s.popMu.Lock()
	defer s.popMu.Unlock()

	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tokenPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if rec.CreatedAt.Before(cutoff) {
				keys = append(keys, it.Item().KeyCopy(nil), indexKey(rec.ID))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(keys) / 2, nil
}

// Close releases the sequence and closes the database
func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

// Ping checks if the store is healthy
func (s *BadgerStore) Ping() error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}
