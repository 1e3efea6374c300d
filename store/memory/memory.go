// Package memory provides an in-process, linearizable store.Client.
//
// It is intended for tests and local development. Every operation takes a
// single mutex, so the compare-and-swap on the version token behaves exactly
// like a remote store with strong consistency.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
)

// Hook runs before an operation is applied, outside the store lock, so it
// may call back into the store. A non-nil error is returned to the caller
// instead of performing the operation.
type Hook func(ctx context.Context, op string, key partitionkey.Key, id string) error

// Store is an in-memory store.Client. The zero value is not usable; call New.
type Store struct {
	mu    sync.Mutex
	docs  map[string]store.Document
	calls map[string]int
	hook  Hook

	// newVersion issues version tokens.
	newVersion func() store.Version
}

var _ store.Client = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		docs:  make(map[string]store.Document),
		calls: make(map[string]int),
		newVersion: func() store.Version {
			return store.Version(uuid.NewString())
		},
	}
}

// SetHook installs h, replacing any previous hook. A nil h removes it.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

// Calls returns how many times op was invoked, including failed calls.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of operations invoked.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Seed stores a document unconditionally, bypassing hooks and counters.
func (s *Store) Seed(key partitionkey.Key, id string, payload []byte) store.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := store.Document{Key: key, ID: id, Payload: clonePayload(payload), Version: s.newVersion()}
	s.docs[entryKey(key, id)] = doc
	return doc.Clone()
}

// Peek returns the stored document without counting a call.
func (s *Store) Peek(key partitionkey.Key, id string) (store.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[entryKey(key, id)]
	return doc.Clone(), ok
}

// Read implements store.Client.
func (s *Store) Read(ctx context.Context, key partitionkey.Key, id string) (store.Document, error) {
	if err := s.before(ctx, store.OpRead, key, id); err != nil {
		return store.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[entryKey(key, id)]
	if !ok {
		return store.Document{}, store.NewError(store.StatusNotFound, store.OpRead, store.ErrNotFound)
	}
	return doc.Clone(), nil
}

// Create implements store.Client.
func (s *Store) Create(ctx context.Context, key partitionkey.Key, id string, payload []byte) (store.Document, error) {
	if err := s.before(ctx, store.OpCreate, key, id); err != nil {
		return store.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := entryKey(key, id)
	if _, ok := s.docs[k]; ok {
		return store.Document{}, store.NewError(store.StatusConflict, store.OpCreate, store.ErrConflict)
	}
	doc := store.Document{Key: key, ID: id, Payload: clonePayload(payload), Version: s.newVersion()}
	s.docs[k] = doc
	return doc.Clone(), nil
}

// ConditionalWrite implements store.Client.
func (s *Store) ConditionalWrite(ctx context.Context, doc store.Document, expected store.Version) (store.Document, error) {
	if err := s.before(ctx, store.OpConditionalWrite, doc.Key, doc.ID); err != nil {
		return store.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := entryKey(doc.Key, doc.ID)
	current, ok := s.docs[k]
	if !ok {
		return store.Document{}, store.NewError(store.StatusNotFound, store.OpConditionalWrite, store.ErrNotFound)
	}
	if current.Version != expected {
		return store.Document{}, store.NewError(store.StatusPreconditionFailed, store.OpConditionalWrite, store.ErrPreconditionFailed)
	}
	next := store.Document{Key: doc.Key, ID: doc.ID, Payload: clonePayload(doc.Payload), Version: s.newVersion()}
	s.docs[k] = next
	return next.Clone(), nil
}

// before counts the call, then runs the context check and the hook.
func (s *Store) before(ctx context.Context, op string, key partitionkey.Key, id string) error {
	s.mu.Lock()
	s.calls[op]++
	hook := s.hook
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return store.NewError(store.StatusUnavailable, op, err)
	}
	if hook != nil {
		return hook(ctx, op, key, id)
	}
	return nil
}

func entryKey(key partitionkey.Key, id string) string {
	return partitionkey.Encode(key) + "\x00" + id
}

func clonePayload(p []byte) []byte {
	if p == nil {
		return nil
	}
	return append([]byte(nil), p...)
}
