package coordinator_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/jacentio/occ/coordinator"
	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
)

// --- Test Helpers ---

// counter is the payload the tests mutate.
type counter struct {
	N int `json:"n"`
}

func tenantKey() partitionkey.Key {
	return partitionkey.MustNew(partitionkey.String("tenant"), partitionkey.Number(1))
}

func counterPayload(n int) []byte {
	return []byte(fmt.Sprintf(`{"n":%d}`, n))
}

func decodeCounter(t *testing.T, doc store.Document) int {
	t.Helper()
	var c counter
	if err := json.Unmarshal(doc.Payload, &c); err != nil {
		t.Fatalf("decode payload %q: %v", doc.Payload, err)
	}
	return c.N
}

// increment adds one to the counter, starting from zero on create.
func increment(doc store.Document) (store.Document, error) {
	var c counter
	if len(doc.Payload) > 0 {
		if err := json.Unmarshal(doc.Payload, &c); err != nil {
			return store.Document{}, err
		}
	}
	c.N++
	payload, err := json.Marshal(c)
	if err != nil {
		return store.Document{}, err
	}
	doc.Payload = payload
	return doc, nil
}

// stubClient is a scripted store.Client. Unset hooks fail the test.
type stubClient struct {
	t *testing.T

	mu                     sync.Mutex
	reads, creates, writes int
	expected               []store.Version

	read   func(n int) (store.Document, error)
	create func(n int) (store.Document, error)
	write  func(n int, doc store.Document) (store.Document, error)

	// wrote is signalled after every conditional write when non-nil.
	wrote chan struct{}
}

var _ store.Client = (*stubClient)(nil)

func (s *stubClient) Read(ctx context.Context, key partitionkey.Key, id string) (store.Document, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()
	if s.read == nil {
		s.t.Errorf("unexpected Read(%s, %s)", key, id)
		return store.Document{}, store.ErrNotFound
	}
	return s.read(n)
}

func (s *stubClient) Create(ctx context.Context, key partitionkey.Key, id string, payload []byte) (store.Document, error) {
	s.mu.Lock()
	s.creates++
	n := s.creates
	s.mu.Unlock()
	if s.create == nil {
		s.t.Errorf("unexpected Create(%s, %s)", key, id)
		return store.Document{}, store.ErrConflict
	}
	return s.create(n)
}

func (s *stubClient) ConditionalWrite(ctx context.Context, doc store.Document, expected store.Version) (store.Document, error) {
	s.mu.Lock()
	s.writes++
	n := s.writes
	s.expected = append(s.expected, expected)
	s.mu.Unlock()
	if s.wrote != nil {
		defer func() { s.wrote <- struct{}{} }()
	}
	if s.write == nil {
		s.t.Errorf("unexpected ConditionalWrite(%s)", doc.Ref())
		return store.Document{}, store.ErrPreconditionFailed
	}
	return s.write(n, doc)
}

func (s *stubClient) counts() (reads, creates, writes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.creates, s.writes
}

// versionedRead returns a read hook that yields a fresh version per call.
func versionedRead(key partitionkey.Key, id string) func(n int) (store.Document, error) {
	return func(n int) (store.Document, error) {
		return store.Document{
			Key:     key,
			ID:      id,
			Payload: counterPayload(n),
			Version: store.Version(fmt.Sprintf("v%d", n)),
		}, nil
	}
}

func alwaysStale(int, store.Document) (store.Document, error) {
	return store.Document{}, store.NewError(store.StatusPreconditionFailed, store.OpConditionalWrite, store.ErrPreconditionFailed)
}

func expectKind(t *testing.T, err error, want coordinator.FailureKind) *coordinator.Error {
	t.Helper()
	if got := coordinator.KindOf(err); got != want {
		t.Fatalf("expected kind %v, got %v (err=%v)", want, got, err)
	}
	coordErr, ok := err.(*coordinator.Error)
	if !ok {
		t.Fatalf("expected *coordinator.Error, got %T", err)
	}
	return coordErr
}
