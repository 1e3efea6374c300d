package stream_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
	"github.com/jacentio/occ/stream"
)

// --- Test Helpers ---

func image(etag, body string) map[string]events.DynamoDBAttributeValue {
	img := map[string]events.DynamoDBAttributeValue{
		"pk":   events.NewStringAttribute(`["tenant",1]`),
		"id":   events.NewStringAttribute("doc-1"),
		"etag": events.NewStringAttribute(etag),
	}
	if body != "" {
		img["body"] = events.NewBinaryAttribute([]byte(body))
	}
	return img
}

func record(name, seq string, oldImage, newImage map[string]events.DynamoDBAttributeValue) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   "evt-" + seq,
		EventName: name,
		Change: events.DynamoDBStreamRecord{
			Keys: map[string]events.DynamoDBAttributeValue{
				"pk": events.NewStringAttribute(`["tenant",1]`),
				"id": events.NewStringAttribute("doc-1"),
			},
			SequenceNumber: seq,
			OldImage:       oldImage,
			NewImage:       newImage,
		},
	}
}

func badRecord(seq string) events.DynamoDBEventRecord {
	r := record("MODIFY", seq, nil, image("v9", ""))
	r.Change.Keys = map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute("not a key"),
		"id": events.NewStringAttribute("doc-1"),
	}
	return r
}

type recorder struct {
	events []stream.ChangeEvent
}

func (r *recorder) OnChange(_ context.Context, e stream.ChangeEvent) error {
	r.events = append(r.events, e)
	return nil
}

func tenantKey() partitionkey.Key {
	return partitionkey.MustNew(partitionkey.String("tenant"), partitionkey.Number(1))
}

// --- Decode Tests ---

func TestDecode(t *testing.T) {
	key := tenantKey()

	tests := []struct {
		name     string
		record   events.DynamoDBEventRecord
		expected stream.ChangeEvent
	}{
		{
			name:   "insert",
			record: record("INSERT", "1", nil, image("v1", `{"n":1}`)),
			expected: stream.ChangeEvent{
				EventID: "evt-1", Kind: stream.Inserted, Key: key, ID: "doc-1",
				Version: "v1", Payload: []byte(`{"n":1}`),
			},
		},
		{
			name:   "modify",
			record: record("MODIFY", "2", image("v1", `{"n":1}`), image("v2", `{"n":2}`)),
			expected: stream.ChangeEvent{
				EventID: "evt-2", Kind: stream.Modified, Key: key, ID: "doc-1",
				Version: "v2", PreviousVersion: "v1", Payload: []byte(`{"n":2}`),
			},
		},
		{
			name:   "remove",
			record: record("REMOVE", "3", image("v2", `{"n":2}`), nil),
			expected: stream.ChangeEvent{
				EventID: "evt-3", Kind: stream.Removed, Key: key, ID: "doc-1",
				PreviousVersion: "v2",
			},
		},
		{
			name:   "keys only",
			record: record("MODIFY", "4", nil, nil),
			expected: stream.ChangeEvent{
				EventID: "evt-4", Kind: stream.Modified, Key: key, ID: "doc-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := stream.Decode(tt.record)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Key.Equal(tt.expected.Key) {
				t.Errorf("expected key %s, got %s", tt.expected.Key, got.Key)
			}
			got.Key, tt.expected.Key = partitionkey.Key{}, partitionkey.Key{}
			if diff := cmp.Diff(tt.expected, got, cmp.AllowUnexported(partitionkey.Key{})); diff != "" {
				t.Errorf("event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecode_UnknownEventName(t *testing.T) {
	if _, err := stream.Decode(record("TRUNCATE", "1", nil, nil)); err == nil {
		t.Error("expected error for unknown event name")
	}
}

func TestChangeEvent_Ref(t *testing.T) {
	e := stream.ChangeEvent{Key: tenantKey(), ID: "doc-1"}
	if e.Ref() != store.Ref(tenantKey(), "doc-1") {
		t.Errorf("unexpected ref %q", e.Ref())
	}
}

// --- Handler Tests ---

func TestNewHandler_NilLogger(t *testing.T) {
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("NewHandler returned nil")
	}
	if err := h.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, image("v1", "")),
	}}); err != nil {
		t.Errorf("expected nil observer to be allowed, got %v", err)
	}
}

func TestHandler_EmptyEvent(t *testing.T) {
	rec := &recorder{}
	h := stream.NewHandler(rec, zaptest.NewLogger(t))

	if err := h.Handle(context.Background(), events.DynamoDBEvent{}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("expected no events, got %d", len(rec.events))
	}
}

func TestHandler_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	h := stream.NewHandler(rec, zaptest.NewLogger(t))

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, image("v1", "")),
		record("MODIFY", "2", image("v1", ""), image("v2", "")),
		record("REMOVE", "3", image("v2", ""), nil),
	}}
	if err := h.Handle(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var kinds []stream.ChangeKind
	for _, e := range rec.events {
		kinds = append(kinds, e.Kind)
	}
	expected := []stream.ChangeKind{stream.Inserted, stream.Modified, stream.Removed}
	if diff := cmp.Diff(expected, kinds); diff != "" {
		t.Errorf("kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler_CollectsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := &recorder{}
	h := stream.NewHandler(rec, zap.New(core))

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		badRecord("1"),
		record("INSERT", "2", nil, image("v1", "")),
		badRecord("3"),
	}}
	err := h.Handle(context.Background(), event)
	if err == nil {
		t.Fatal("expected error")
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}
	if len(merr.Errors) != 2 {
		t.Errorf("expected 2 failures, got %d", len(merr.Errors))
	}
	if !errors.Is(err, partitionkey.ErrMalformed) {
		t.Errorf("expected ErrMalformed in the chain, got %v", err)
	}
	if len(rec.events) != 1 {
		t.Errorf("expected the good record to be delivered, got %d events", len(rec.events))
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 error logs, got %d", logs.Len())
	}
}

func TestHandler_ObserverError(t *testing.T) {
	boom := errors.New("boom")
	h := stream.NewHandler(stream.ObserverFunc(func(context.Context, stream.ChangeEvent) error {
		return boom
	}), zaptest.NewLogger(t))

	err := h.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, image("v1", "")),
	}})
	if !errors.Is(err, boom) {
		t.Errorf("expected observer error, got %v", err)
	}
}

func TestHandler_CancelledContext(t *testing.T) {
	rec := &recorder{}
	h := stream.NewHandler(rec, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Handle(ctx, events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, image("v1", "")),
	}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Errorf("expected no events, got %d", len(rec.events))
	}
}

func TestHandler_HandleBatch(t *testing.T) {
	rec := &recorder{}
	h := stream.NewHandler(rec, zaptest.NewLogger(t))

	event := events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "100", nil, image("v1", "")),
		badRecord("200"),
		record("MODIFY", "300", image("v1", ""), image("v2", "")),
	}}
	resp, err := h.HandleBatch(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []events.DynamoDBBatchItemFailure{{ItemIdentifier: "200"}}
	if diff := cmp.Diff(expected, resp.BatchItemFailures); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
	if len(rec.events) != 2 {
		t.Errorf("expected 2 events, got %d", len(rec.events))
	}
}

func TestHandler_HandleBatch_Cancelled(t *testing.T) {
	h := stream.NewHandler(&recorder{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := h.HandleBatch(ctx, events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, image("v1", "")),
		record("MODIFY", "2", image("v1", ""), image("v2", "")),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 2 {
		t.Errorf("expected every record to be reported, got %d", len(resp.BatchItemFailures))
	}
}

// --- VersionIndex Tests ---

func TestVersionIndex(t *testing.T) {
	index := stream.NewVersionIndex()
	h := stream.NewHandler(index, zaptest.NewLogger(t))
	key := tenantKey()

	if err := h.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("INSERT", "1", nil, image("v1", "")),
		record("MODIFY", "2", image("v1", ""), image("v2", "")),
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v, ok := index.Latest(key, "doc-1")
	if !ok || v != "v2" {
		t.Errorf("expected v2, got %q (found=%v)", v, ok)
	}
	if _, ok := index.Latest(key, "doc-2"); ok {
		t.Error("expected doc-2 to be unknown")
	}
	if index.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", index.Len())
	}

	if err := h.Handle(context.Background(), events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		record("REMOVE", "3", image("v2", ""), nil),
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := index.Latest(key, "doc-1"); ok {
		t.Error("expected removed document to be dropped")
	}
}
