package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Schema, following the bucket-per-kind layout of
// IAmSoThirsty-Project-AI/octoreflex/internal/storage/bolt.go: one bucket for
// the append-only message log (key = big-endian id, monotonic via bbolt's
// own per-bucket NextSequence), one for small metadata.
const (
	bucketMessages = "messages"
	bucketMeta     = "meta"

	metaKeySchemaVersion = "schema_version"
	schemaVersion        = "1"
)

// Ledger is the durable, ordered, append-only store for one cluster's
// messages. One Ledger owns exactly one bbolt file. All exported methods are
// safe for concurrent use; bbolt serializes writers internally and Ledger
// adds no extra locking on the write path.
type Ledger struct {
	clusterID string
	path      string
	db        *bolt.DB

	mu     sync.Mutex // guards closed
	closed bool
}

// Open opens (creating if absent) the bbolt file at path for clusterID.
// Initializes the required buckets and schema-version marker in a single
// write transaction, mirroring octoreflex's storage.Open.
func Open(clusterID, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, newStorageError("open", clusterID, err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, newStorageError("open", clusterID, err)
	}

	l := &Ledger{clusterID: clusterID, path: path, db: db}

	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketMessages)); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		if meta.Get([]byte(metaKeySchemaVersion)) == nil {
			return meta.Put([]byte(metaKeySchemaVersion), []byte(schemaVersion))
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, newStorageError("open", clusterID, err)
	}

	return l, nil
}

// Close closes the underlying bbolt file. Idempotent, per spec §9 "Scoped
// resources": every Ledger open is paired with a close path and closes must
// be idempotent.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.db.Close(); err != nil {
		return newStorageError("close", l.clusterID, err)
	}
	return nil
}

// ClusterID returns the cluster this ledger belongs to.
func (l *Ledger) ClusterID() string { return l.clusterID }

// Path returns the bbolt file path backing this ledger.
func (l *Ledger) Path() string { return l.path }

func idKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// Append persists msg, assigning ID (monotonic within the cluster) and
// Timestamp (if zero) before storing. Returns the stored form. Spec §4.1,
// invariant: once appended, a message is immutable; append order defines
// total order within the cluster.
func (l *Ledger) Append(msg Message) (Message, error) {
	if err := requireNonEmpty("cluster_id", msg.ClusterID); err != nil {
		return Message{}, err
	}
	if err := requireNonEmpty("topic", msg.Topic); err != nil {
		return Message{}, err
	}
	if err := requireNonEmpty("sender", msg.Sender); err != nil {
		return Message{}, err
	}
	if msg.ClusterID != l.clusterID {
		return Message{}, newStorageError("append", l.clusterID,
			fmt.Errorf("message cluster_id %q does not match ledger cluster %q", msg.ClusterID, l.clusterID))
	}
	if msg.Receiver == "" {
		msg.Receiver = defaultReceiver
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMessages))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		msg.ID = int64(seq)

		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(idKey(seq), data)
	})
	if err != nil {
		return Message{}, newStorageError("append", l.clusterID, err)
	}

	return msg, nil
}

// Order controls result ordering for Query.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// QueryFilter describes a bounded, filtered read over one cluster's ledger.
// All non-empty/non-zero fields are ANDed together. Since is an inclusive
// lower bound on Timestamp. Limit is a hard cap (<=0 means unlimited).
type QueryFilter struct {
	ClusterID string
	Topic     string
	Sender    string
	Since     int64
	Limit     int
	Order     Order
}

// Query returns messages matching filter, ordered by (timestamp, id)
// ascending or descending per filter.Order (default ascending).
func (l *Ledger) Query(filter QueryFilter) ([]Message, error) {
	var out []Message

	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMessages))
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var msg Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			if matches(msg, filter) {
				out = append(out, msg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, newStorageError("query", l.clusterID, err)
	}

	desc := filter.Order == OrderDesc
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			if desc {
				return out[i].Timestamp > out[j].Timestamp
			}
			return out[i].Timestamp < out[j].Timestamp
		}
		if desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(msg Message, f QueryFilter) bool {
	if f.ClusterID != "" && msg.ClusterID != f.ClusterID {
		return false
	}
	if f.Topic != "" && msg.Topic != f.Topic {
		return false
	}
	if f.Sender != "" && msg.Sender != f.Sender {
		return false
	}
	if f.Since != 0 && msg.Timestamp < f.Since {
		return false
	}
	return true
}

// FindLast returns the most recent message matching cluster/topic/sender, or
// (nil, nil) if none exists.
func (l *Ledger) FindLast(clusterID, topic, sender string) (*Message, error) {
	msgs, err := l.Query(QueryFilter{
		ClusterID: clusterID,
		Topic:     topic,
		Sender:    sender,
		Order:     OrderDesc,
		Limit:     1,
	})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// LastID returns the highest message id currently stored (0 if empty).
// Used by pollForMessages to resume strictly-after the last delivered id.
func (l *Ledger) LastID() (int64, error) {
	var last int64
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketMessages))
		k, _ := b.Cursor().Last()
		if k == nil {
			return nil
		}
		last = int64(binary.BigEndian.Uint64(k))
		return nil
	})
	if err != nil {
		return 0, newStorageError("query", l.clusterID, err)
	}
	return last, nil
}
