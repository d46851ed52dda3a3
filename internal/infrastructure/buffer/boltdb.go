package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const failedSuffix = "_failed"

// Store is the bbolt-backed outbox. Pending items live in one bucket ordered
// by priority and time; items that exhausted their retries are parked in a
// second bucket for inspection.
type Store struct {
	db      *bolt.DB
	pending []byte
	failed  []byte
}

// Open creates the outbox file and its buckets.
func Open(path string, bucket string) (*Store, error) {
	if bucket == "" {
		bucket = "outbox"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:      db,
		pending: []byte(bucket),
		failed:  []byte(bucket + failedSuffix),
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{s.pending, s.failed} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Enqueue stores an item under a priority-aware key.
func (s *Store) Enqueue(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(s.pending), &item)
	})
}

// GetBatch returns up to limit pending items without removing them.
func (s *Store) GetBatch(limit int) ([]Item, error) {
	if s == nil || s.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}

	var items []Item
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.pending).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.bucketKey = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

// Remove deletes a pending item.
func (s *Store) Remove(item Item) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return remove(tx.Bucket(s.pending), item)
	})
}

// Requeue replaces item with a copy carrying the bumped retry counter and a
// fresh timestamp, in one transaction.
func (s *Store) Requeue(item Item, cause error) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.pending)
		if err := remove(b, item); err != nil {
			return err
		}
		item.Retries++
		item.Timestamp = time.Now().UTC()
		if cause != nil {
			item.LastError = cause.Error()
		}
		item.bucketKey = nil
		return put(b, &item)
	})
}

// Park moves an item that exhausted its retries to the failed bucket.
func (s *Store) Park(item Item, cause error) error {
	if s == nil || s.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := remove(tx.Bucket(s.pending), item); err != nil {
			return err
		}
		if cause != nil {
			item.LastError = cause.Error()
		}
		item.bucketKey = nil
		return put(tx.Bucket(s.failed), &item)
	})
}

// Size returns the number of pending items.
func (s *Store) Size() (int, error) {
	return s.count(s.pending)
}

// Failed returns the number of parked items.
func (s *Store) Failed() (int, error) {
	return s.count(s.failed)
}

func (s *Store) count(bucket []byte) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Cleanup drops parked items older than olderThan and returns how many were
// removed. Pending items are never dropped.
func (s *Store) Cleanup(olderThan time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.failed)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var item Item
			if err := json.Unmarshal(v, &item); err != nil || item.Timestamp.Before(olderThan) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

// Close closes the bbolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Stats exposes bbolt statistics for the monitor.
func (s *Store) Stats() bolt.Stats {
	if s == nil || s.db == nil {
		return bolt.Stats{}
	}
	return s.db.Stats()
}

func put(b *bolt.Bucket, item *Item) error {
	item.normalize()
	item.bucketKey = buildKey(*item)
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return b.Put(item.bucketKey, payload)
}

func remove(b *bolt.Bucket, item Item) error {
	if len(item.bucketKey) > 0 {
		return b.Delete(item.bucketKey)
	}
	if item.ID == "" {
		return nil
	}
	var key []byte
	err := b.ForEach(func(k, v []byte) error {
		var stored Item
		if json.Unmarshal(v, &stored) == nil && stored.ID == item.ID && key == nil {
			key = append([]byte(nil), k...)
		}
		return nil
	})
	if err != nil || key == nil {
		return err
	}
	return b.Delete(key)
}

func buildKey(item Item) []byte {
	return []byte(fmt.Sprintf("%d_%020d_%s", item.Priority, item.Timestamp.UnixNano(), item.ID))
}
