// Package audit records authentication events durably across restarts as
// a queryable store, rather than a plain-text log line. Grounded on
// pkg/storage/boltdb.go's bucket layout and Update/View idiom;
// deliberately a separate mechanism from internal/persistence and
// internal/journal, which own the plain-text snapshot/journal format for
// the directory store itself and must not be muddied with an unrelated
// on-disk shape.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketEvents = []byte("auth_events")

// Event is a single authentication attempt.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	RemoteAddr string    `json:"remote_addr"`
	Username   string    `json:"username"`
	Outcome    string    `json:"outcome"`
}

// Log is a bbolt-backed append log of authentication Events.
type Log struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the audit database at path.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create bucket: %w", err)
	}
	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends an authentication event. Events are keyed by an
// incrementing sequence number so iteration preserves insertion order.
func (l *Log) Record(ev Event) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

// Recent returns up to limit of the most recently recorded events, newest
// first.
func (l *Log) Recent(limit int) ([]Event, error) {
	var events []Event
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(events) < limit; k, v = c.Prev() {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v & 0xff)
		v >>= 8
	}
	return b
}
