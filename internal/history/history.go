package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const keyPrefix = "transfer:"

// Direction of a recorded transfer
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Entry is one finished transfer. Codes are never stored, only the nameplate.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	Direction  Direction `json:"direction"`
	Nameplate  string    `json:"nameplate"`
	Filename   string    `json:"filename,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Size       int64     `json:"size"`
	Outcome    string    `json:"outcome"` // "completed" or "aborted"
	Reason     string    `json:"reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store wraps BadgerDB for transfer history
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the history database at path
func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// entryKey sorts entries by finish time
func entryKey(e Entry) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", keyPrefix, e.FinishedAt.UnixNano(), e.ID))
}

// Record stores e, assigning an ID and finish time when missing
func (s *Store) Record(e Entry) (Entry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}

	val, err := json.Marshal(e)
	if err != nil {
		return e, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), val)
	})
	if err != nil {
		return e, fmt.Errorf("failed to record transfer: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest first. A limit of 0 or less
// returns everything.
func (s *Store) List(limit int) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append([]byte(keyPrefix), 0xFF)); it.ValidForPrefix(opts.Prefix); it.Next() {
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}

			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}
