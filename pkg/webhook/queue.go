package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// Database key namespace. Pending deliveries live under "d:<deliveryID>";
// the value is the JSON-encoded delivery snapshot. The snapshot carries the
// subscription URL and secret so a delivery survives deletion of its
// subscription mid-retry.
const prefixDelivery = "d:"

// delivery is one pending webhook POST, persisted until it succeeds or
// exhausts its retries.
type delivery struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	URL         string    `json:"url"`
	Secret      string    `json:"secret"`
	Event       string    `json:"event"`
	Body        []byte    `json:"body"`
	Attempt     int       `json:"attempt"`
	NextAttempt time.Time `json:"next_attempt"`
}

func keyDelivery(id string) []byte {
	return []byte(prefixDelivery + id)
}

func encodeDelivery(d *delivery) ([]byte, error) {
	bytes, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery: %w", err)
	}
	return bytes, nil
}

func decodeDelivery(bytes []byte) (*delivery, error) {
	var d delivery
	if err := json.Unmarshal(bytes, &d); err != nil {
		return nil, fmt.Errorf("failed to decode delivery: %w", err)
	}
	return &d, nil
}

// Queue persists pending deliveries in BadgerDB so retries survive a
// restart.
type Queue struct {
	db *badgerdb.DB
}

// OpenQueue opens the delivery queue at path. An empty path opens an
// in-memory queue, used in tests.
func OpenQueue(path string) (*Queue, error) {
	var opts badgerdb.Options
	if path == "" {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badgerdb.DefaultOptions(path)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open webhook queue: %w", err)
	}
	return &Queue{db: db}, nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// Put persists a delivery, overwriting any previous state for its ID.
func (q *Queue) Put(d *delivery) error {
	return q.db.Update(func(txn *badgerdb.Txn) error {
		bytes, err := encodeDelivery(d)
		if err != nil {
			return err
		}
		return txn.Set(keyDelivery(d.ID), bytes)
	})
}

// Delete removes a delivery. Missing keys are not an error.
func (q *Queue) Delete(id string) error {
	return q.db.Update(func(txn *badgerdb.Txn) error {
		err := txn.Delete(keyDelivery(id))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// Pending returns every persisted delivery, in key order.
func (q *Queue) Pending() ([]*delivery, error) {
	var out []*delivery
	err := q.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixDelivery)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				d, err := decodeDelivery(val)
				if err != nil {
					return err
				}
				out = append(out, d)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
