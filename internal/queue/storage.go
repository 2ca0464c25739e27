package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketTasks    = []byte("tasks")
	bucketReady    = []byte("ready")
	bucketInFlight = []byte("in_flight")
)

// DefaultVisibilityTimeout bounds how long a claimed message stays hidden
// before the reaper considers the worker lost and redelivers it.
const DefaultVisibilityTimeout = 45 * time.Minute

// BoltStorage implements Queue on BoltDB
type BoltStorage struct {
	db         *bolt.DB
	visibility time.Duration
}

// NewBoltStorage creates a new BoltDB-backed queue
func NewBoltStorage(path string, visibility time.Duration) (*BoltStorage, error) {
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTasks, bucketReady, bucketInFlight} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db, visibility: visibility}, nil
}

// Enqueue adds a message deliverable after delay
func (s *BoltStorage) Enqueue(ctx context.Context, msg *Message, delay time.Duration) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if delay < 0 {
		delay = 0
	}
	msg.DelaySeconds = delay.Seconds()
	msg.NotBefore = time.Now().Add(delay)
	msg.ClaimDeadline = time.Time{}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		if err := tx.Bucket(bucketTasks).Put([]byte(msg.ID), data); err != nil {
			return fmt.Errorf("failed to store message: %w", err)
		}

		indexKey := makeIndexKey(msg.NotBefore, msg.ID)
		if err := tx.Bucket(bucketReady).Put(indexKey, []byte(msg.ID)); err != nil {
			return fmt.Errorf("failed to add to ready index: %w", err)
		}
		return nil
	})
}

// Dequeue claims the earliest due message of an accepted class. The claim
// moves its index entry to the in-flight set with a visibility deadline.
func (s *BoltStorage) Dequeue(ctx context.Context, classes ...Class) (*Message, error) {
	accept := make(map[Class]bool, len(classes))
	for _, c := range classes {
		accept[c] = true
	}

	var msg *Message

	err := s.db.Update(func(tx *bolt.Tx) error {
		taskBucket := tx.Bucket(bucketTasks)
		readyBucket := tx.Bucket(bucketReady)
		inFlightBucket := tx.Bucket(bucketInFlight)

		c := readyBucket.Cursor()
		now := time.Now()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts := parseTimestampFromKey(k)
			if ts.After(now) {
				break // all remaining are in the future
			}

			data := taskBucket.Get(v)
			if data == nil {
				// Task was deleted, clean up index
				c.Delete()
				continue
			}

			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}

			if len(accept) > 0 && !accept[m.Class] {
				continue
			}

			m.DeliveryCount++
			m.ClaimDeadline = now.Add(s.visibility)

			updated, err := json.Marshal(&m)
			if err != nil {
				return err
			}
			if err := taskBucket.Put([]byte(m.ID), updated); err != nil {
				return err
			}

			if err := c.Delete(); err != nil {
				return err
			}
			if err := inFlightBucket.Put(makeIndexKey(m.ClaimDeadline, m.ID), []byte(m.ID)); err != nil {
				return err
			}

			msg = &m
			return nil
		}

		return nil
	})

	return msg, err
}

// Ack removes a claimed message permanently
func (s *BoltStorage) Ack(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		taskBucket := tx.Bucket(bucketTasks)

		data := taskBucket.Get([]byte(id))
		if data == nil {
			return nil // already gone, duplicate ack
		}

		var m Message
		if err := json.Unmarshal(data, &m); err == nil {
			tx.Bucket(bucketInFlight).Delete(makeIndexKey(m.ClaimDeadline, m.ID))
			tx.Bucket(bucketReady).Delete(makeIndexKey(m.NotBefore, m.ID))
		}

		return taskBucket.Delete([]byte(id))
	})
}

// Nack returns a claimed message to the ready set after delay
func (s *BoltStorage) Nack(ctx context.Context, id string, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		taskBucket := tx.Bucket(bucketTasks)

		data := taskBucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("message not found: %s", id)
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}

		if !m.ClaimDeadline.IsZero() {
			tx.Bucket(bucketInFlight).Delete(makeIndexKey(m.ClaimDeadline, m.ID))
		}

		m.NotBefore = time.Now().Add(delay)
		m.ClaimDeadline = time.Time{}

		updated, err := json.Marshal(&m)
		if err != nil {
			return err
		}
		if err := taskBucket.Put([]byte(m.ID), updated); err != nil {
			return err
		}
		return tx.Bucket(bucketReady).Put(makeIndexKey(m.NotBefore, m.ID), []byte(m.ID))
	})
}

// Reap returns expired in-flight messages to the ready set. Covers workers
// that crashed after claiming a message (at-least-once delivery).
func (s *BoltStorage) Reap(ctx context.Context, now time.Time) (int, error) {
	reaped := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		taskBucket := tx.Bucket(bucketTasks)
		readyBucket := tx.Bucket(bucketReady)
		inFlightBucket := tx.Bucket(bucketInFlight)

		c := inFlightBucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts := parseTimestampFromKey(k)
			if ts.After(now) {
				break
			}

			data := taskBucket.Get(v)
			if data == nil {
				c.Delete()
				continue
			}

			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				continue
			}

			m.NotBefore = now
			m.ClaimDeadline = time.Time{}

			updated, err := json.Marshal(&m)
			if err != nil {
				return err
			}
			if err := taskBucket.Put([]byte(m.ID), updated); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			if err := readyBucket.Put(makeIndexKey(m.NotBefore, m.ID), []byte(m.ID)); err != nil {
				return err
			}
			reaped++
		}

		return nil
	})

	return reaped, err
}

// Stats returns queue statistics
func (s *BoltStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByClass: make(map[Class]int64)}

	err := s.db.View(func(tx *bolt.Tx) error {
		now := time.Now()

		c := tx.Bucket(bucketReady).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			stats.Ready++
			if !parseTimestampFromKey(k).After(now) {
				stats.Due++
			}
		}

		c = tx.Bucket(bucketInFlight).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			stats.InFlight++
		}

		c = tx.Bucket(bucketTasks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			stats.Total++
			var m Message
			if err := json.Unmarshal(v, &m); err == nil {
				stats.ByClass[m.Class]++
			}
		}

		return nil
	})

	return stats, err
}

// Close closes the database connection
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// makeIndexKey creates a sortable key from timestamp and ID
func makeIndexKey(t time.Time, id string) []byte {
	// Format: timestamp (RFC3339Nano) + ":" + id
	return []byte(t.UTC().Format(time.RFC3339Nano) + ":" + id)
}

// parseTimestampFromKey extracts timestamp from index key
func parseTimestampFromKey(key []byte) time.Time {
	s := string(key)
	// Find the separator
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			ts, _ := time.Parse(time.RFC3339Nano, s[:i])
			return ts
		}
	}
	return time.Time{}
}
