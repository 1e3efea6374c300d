// Package storetest provides a conformance suite for store.Client
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
)

// Factory returns a fresh, empty client. Cleanup should be registered on t.
type Factory func(t *testing.T) store.Client

// Run exercises the store.Client contract against clients built by newClient.
func Run(t *testing.T, newClient Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, store.Client)
	}{
		{"ReadMissing", testReadMissing},
		{"CreateAndRead", testCreateAndRead},
		{"CreateConflict", testCreateConflict},
		{"ConditionalWrite", testConditionalWrite},
		{"ConditionalWriteStale", testConditionalWriteStale},
		{"ConditionalWriteMissing", testConditionalWriteMissing},
		{"KeyIsolation", testKeyIsolation},
		{"PayloadIsolation", testPayloadIsolation},
		{"ConcurrentCompareAndSwap", testConcurrentCompareAndSwap},
		{"ConcurrentCreate", testConcurrentCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newClient(t))
		})
	}
}

func tenantKey() partitionkey.Key {
	return partitionkey.MustNew(partitionkey.String("tenant"), partitionkey.Number(1))
}

func expectStatus(t *testing.T, err error, want store.Status) {
	t.Helper()
	if got := store.StatusOf(err); got != want {
		t.Fatalf("expected status %v, got %v (err=%v)", want, got, err)
	}
}

func testReadMissing(t *testing.T, c store.Client) {
	_, err := c.Read(context.Background(), tenantKey(), "missing")
	expectStatus(t, err, store.StatusNotFound)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func testCreateAndRead(t *testing.T, c store.Client) {
	ctx := context.Background()
	created, err := c.Create(ctx, tenantKey(), "doc-1", []byte(`{"n":1}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Version == "" {
		t.Error("expected a version token on create")
	}
	if !created.Key.Equal(tenantKey()) || created.ID != "doc-1" {
		t.Errorf("unexpected identity %s", created.Ref())
	}

	got, err := c.Read(ctx, tenantKey(), "doc-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Version != created.Version {
		t.Errorf("expected version %q, got %q", created.Version, got.Version)
	}
	if diff := cmp.Diff(`{"n":1}`, string(got.Payload)); diff != "" {
		t.Errorf("unexpected payload (-want +got):\n%s", diff)
	}
}

func testCreateConflict(t *testing.T, c store.Client) {
	ctx := context.Background()
	first, err := c.Create(ctx, tenantKey(), "doc-1", []byte(`"first"`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = c.Create(ctx, tenantKey(), "doc-1", []byte(`"second"`))
	expectStatus(t, err, store.StatusConflict)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	got, err := c.Read(ctx, tenantKey(), "doc-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Version != first.Version || string(got.Payload) != `"first"` {
		t.Errorf("expected losing create to leave document untouched, got %s %q", got.Payload, got.Version)
	}
}

func testConditionalWrite(t *testing.T, c store.Client) {
	ctx := context.Background()
	created, err := c.Create(ctx, tenantKey(), "doc-1", []byte(`1`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	next := created.Clone()
	next.Payload = []byte(`2`)
	written, err := c.ConditionalWrite(ctx, next, created.Version)
	if err != nil {
		t.Fatalf("conditional write: %v", err)
	}
	if written.Version == "" || written.Version == created.Version {
		t.Errorf("expected a fresh version, got %q (was %q)", written.Version, created.Version)
	}

	got, err := c.Read(ctx, tenantKey(), "doc-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Version != written.Version || string(got.Payload) != `2` {
		t.Errorf("expected %q/2, got %q/%s", written.Version, got.Version, got.Payload)
	}
}

func testConditionalWriteStale(t *testing.T, c store.Client) {
	ctx := context.Background()
	created, err := c.Create(ctx, tenantKey(), "doc-1", []byte(`1`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	next := created.Clone()
	next.Payload = []byte(`2`)
	if _, err := c.ConditionalWrite(ctx, next, created.Version); err != nil {
		t.Fatalf("conditional write: %v", err)
	}

	stale := created.Clone()
	stale.Payload = []byte(`3`)
	_, err = c.ConditionalWrite(ctx, stale, created.Version)
	expectStatus(t, err, store.StatusPreconditionFailed)
	if !errors.Is(err, store.ErrPreconditionFailed) {
		t.Errorf("expected ErrPreconditionFailed, got %v", err)
	}

	got, err := c.Read(ctx, tenantKey(), "doc-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got.Payload) != `2` {
		t.Errorf("expected stale write to be rejected, payload is %s", got.Payload)
	}
}

func testConditionalWriteMissing(t *testing.T, c store.Client) {
	doc := store.Document{Key: tenantKey(), ID: "ghost", Payload: []byte(`1`)}
	_, err := c.ConditionalWrite(context.Background(), doc, "some-version")
	expectStatus(t, err, store.StatusNotFound)
}

func testKeyIsolation(t *testing.T, c store.Client) {
	ctx := context.Background()
	keys := []partitionkey.Key{
		partitionkey.MustNew(partitionkey.String("a")),
		partitionkey.MustNew(partitionkey.String("a"), partitionkey.Null()),
		partitionkey.MustNew(partitionkey.Undefined()),
		partitionkey.MustNew(partitionkey.Null()),
		partitionkey.MustNew(partitionkey.Bool(false)),
		partitionkey.MustNew(partitionkey.Number(0)),
		partitionkey.MustNew(partitionkey.String("")),
	}

	for i, k := range keys {
		if _, err := c.Create(ctx, k, "shared-id", []byte(fmt.Sprint(i))); err != nil {
			t.Fatalf("create under %s: %v", k, err)
		}
	}
	for i, k := range keys {
		got, err := c.Read(ctx, k, "shared-id")
		if err != nil {
			t.Fatalf("read under %s: %v", k, err)
		}
		if string(got.Payload) != fmt.Sprint(i) {
			t.Errorf("key %s: expected payload %d, got %s", k, i, got.Payload)
		}
	}

	// (key, id) must not be confused with (id, key).
	if _, err := c.Create(ctx, partitionkey.MustNew(partitionkey.String("x")), "y", []byte(`1`)); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := c.Read(ctx, partitionkey.MustNew(partitionkey.String("y")), "x")
	expectStatus(t, err, store.StatusNotFound)
}

func testPayloadIsolation(t *testing.T, c store.Client) {
	ctx := context.Background()
	payload := []byte(`"abc"`)
	if _, err := c.Create(ctx, tenantKey(), "doc-1", payload); err != nil {
		t.Fatalf("create: %v", err)
	}
	payload[1] = 'X'

	got, err := c.Read(ctx, tenantKey(), "doc-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got.Payload[1] = 'Y'

	again, err := c.Read(ctx, tenantKey(), "doc-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(again.Payload) != `"abc"` {
		t.Errorf("expected stored payload to be isolated, got %s", again.Payload)
	}
}

func testConcurrentCompareAndSwap(t *testing.T, c store.Client) {
	ctx := context.Background()
	created, err := c.Create(ctx, tenantKey(), "doc-1", []byte(`0`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 8
	var wins, stale atomic.Int32
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		i := i
		g.Go(func() error {
			doc := created.Clone()
			doc.Payload = []byte(fmt.Sprint(i))
			_, err := c.ConditionalWrite(ctx, doc, created.Version)
			switch store.StatusOf(err) {
			case store.StatusOK:
				wins.Add(1)
			case store.StatusPreconditionFailed:
				stale.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins.Load() != 1 || stale.Load() != writers-1 {
		t.Errorf("expected exactly one winner, got %d wins and %d stale", wins.Load(), stale.Load())
	}
}

func testConcurrentCreate(t *testing.T, c store.Client) {
	ctx := context.Background()
	const creators = 8
	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < creators; i++ {
		i := i
		g.Go(func() error {
			_, err := c.Create(ctx, tenantKey(), "doc-1", []byte(fmt.Sprint(i)))
			switch store.StatusOf(err) {
			case store.StatusOK:
				wins.Add(1)
			case store.StatusConflict:
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins.Load() != 1 || conflicts.Load() != creators-1 {
		t.Errorf("expected exactly one create to win, got %d wins and %d conflicts", wins.Load(), conflicts.Load())
	}
}
