// Package bolt provides a durable, single-process store.Client on top of a
// bbolt file.
//
// Documents are spread over NumShards buckets by partition key. Each
// operation runs in one read-write transaction, which bbolt serializes, so
// the version compare-and-swap is linearizable.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bbolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jacentio/occ/internal/shard"
	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
)

// Config holds configuration for the Store.
type Config struct {
	// Path is the database file. Required.
	Path string

	// NumShards is the number of buckets documents are spread over.
	// The value is fixed for the life of a file: reopening with a different
	// count loses track of existing documents.
	// Default: 1
	// Max: 256
	NumShards int

	// Timeout bounds how long Open waits for the file lock.
	// Default: 1s
	Timeout time.Duration

	// Logger receives open/close events. Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns a single-shard configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:      path,
		NumShards: 1,
		Timeout:   time.Second,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() error {
	if c.Path == "" {
		return errors.New("bolt: path is required")
	}
	c.NumShards = shard.Clamp(c.NumShards)
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}

// record is the stored form of a document.
type record struct {
	Key       partitionkey.Key `json:"pk"`
	ETag      string           `json:"etag"`
	Body      []byte           `json:"body"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store is a bbolt-backed store.Client.
type Store struct {
	db     *bbolt.DB
	config Config
	logger *zap.Logger

	// Now returns the timestamp recorded on writes.
	Now func() time.Time
}

var _ store.Client = (*Store)(nil)

// Open opens (or creates) the database file and its shard buckets.
func Open(config Config) (*Store, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(config.Path, 0600, &bbolt.Options{Timeout: config.Timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", config.Path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range shard.Names(config.NumShards) {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: init buckets: %w", err)
	}

	config.Logger.Info("Opened document store",
		zap.String("path", config.Path),
		zap.Int("shards", config.NumShards))

	return &Store{
		db:     db,
		config: config,
		logger: config.Logger,
		Now:    time.Now,
	}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("Closing document store", zap.String("path", s.config.Path))
	return s.db.Close()
}

// Read implements store.Client.
func (s *Store) Read(ctx context.Context, key partitionkey.Key, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, store.NewError(store.StatusUnavailable, store.OpRead, err)
	}

	var doc store.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, ok, err := s.get(tx, key, id)
		if err != nil {
			return err
		}
		if !ok {
			return store.NewError(store.StatusNotFound, store.OpRead, store.ErrNotFound)
		}
		doc = rec.document(key, id)
		return nil
	})
	if err != nil {
		return store.Document{}, classify(store.OpRead, err)
	}
	return doc, nil
}

// Create implements store.Client.
func (s *Store) Create(ctx context.Context, key partitionkey.Key, id string, payload []byte) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, store.NewError(store.StatusUnavailable, store.OpCreate, err)
	}

	var doc store.Document
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, ok, err := s.get(tx, key, id)
		if err != nil {
			return err
		}
		if ok {
			return store.NewError(store.StatusConflict, store.OpCreate, store.ErrConflict)
		}
		rec := s.newRecord(key, payload)
		if err := s.put(tx, key, id, rec); err != nil {
			return err
		}
		doc = rec.document(key, id)
		return nil
	})
	if err != nil {
		return store.Document{}, classify(store.OpCreate, err)
	}
	return doc, nil
}

// ConditionalWrite implements store.Client.
func (s *Store) ConditionalWrite(ctx context.Context, doc store.Document, expected store.Version) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, store.NewError(store.StatusUnavailable, store.OpConditionalWrite, err)
	}

	var out store.Document
	err := s.db.Update(func(tx *bbolt.Tx) error {
		current, ok, err := s.get(tx, doc.Key, doc.ID)
		if err != nil {
			return err
		}
		if !ok {
			return store.NewError(store.StatusNotFound, store.OpConditionalWrite, store.ErrNotFound)
		}
		if store.Version(current.ETag) != expected {
			return store.NewError(store.StatusPreconditionFailed, store.OpConditionalWrite, store.ErrPreconditionFailed)
		}
		rec := s.newRecord(doc.Key, doc.Payload)
		if err := s.put(tx, doc.Key, doc.ID, rec); err != nil {
			return err
		}
		out = rec.document(doc.Key, doc.ID)
		return nil
	})
	if err != nil {
		return store.Document{}, classify(store.OpConditionalWrite, err)
	}
	return out, nil
}

func (s *Store) newRecord(key partitionkey.Key, payload []byte) record {
	return record{
		Key:       key,
		ETag:      uuid.NewString(),
		Body:      append([]byte(nil), payload...),
		UpdatedAt: s.Now().UTC(),
	}
}

func (s *Store) bucket(tx *bbolt.Tx, key partitionkey.Key) (*bbolt.Bucket, error) {
	name := shard.Bucket(key, s.config.NumShards)
	b := tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket %s missing", name)
	}
	return b, nil
}

func (s *Store) get(tx *bbolt.Tx, key partitionkey.Key, id string) (record, bool, error) {
	b, err := s.bucket(tx, key)
	if err != nil {
		return record{}, false, err
	}
	raw := b.Get(itemKey(key, id))
	if raw == nil {
		return record{}, false, nil
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, false, fmt.Errorf("decode %s: %w", store.Ref(key, id), err)
	}
	return rec, true, nil
}

func (s *Store) put(tx *bbolt.Tx, key partitionkey.Key, id string, rec record) error {
	b, err := s.bucket(tx, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s: %w", store.Ref(key, id), err)
	}
	return b.Put(itemKey(key, id), raw)
}

func (r record) document(key partitionkey.Key, id string) store.Document {
	return store.Document{
		Key:     key,
		ID:      id,
		Payload: append([]byte(nil), r.Body...),
		Version: store.Version(r.ETag),
	}
}

// itemKey is the wire-form key and the id separated by a NUL byte. The wire
// form never contains a raw NUL, so the split is unambiguous.
func itemKey(key partitionkey.Key, id string) []byte {
	b := partitionkey.AppendEncode(nil, key)
	b = append(b, 0)
	return append(b, id...)
}

// classify passes StatusErrors through and reports everything else
// (I/O, decoding, closed database) as internal.
func classify(op string, err error) error {
	var statusErr *store.StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	if errors.Is(err, bbolt.ErrDatabaseNotOpen) || errors.Is(err, bbolt.ErrTimeout) {
		return store.NewError(store.StatusUnavailable, op, err)
	}
	return store.NewError(store.StatusInternal, op, err)
}
