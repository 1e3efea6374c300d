// Package stream decodes DynamoDB Streams records for the document table
// into change events and hands them to an Observer.
package stream

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
	"github.com/jacentio/occ/store/dynamo"
)

// ChangeKind is the kind of mutation a stream record describes.
type ChangeKind string

const (
	Inserted ChangeKind = "INSERT"
	Modified ChangeKind = "MODIFY"
	Removed  ChangeKind = "REMOVE"
)

// ChangeEvent is one decoded stream record.
type ChangeEvent struct {
	EventID string
	Kind    ChangeKind
	Key     partitionkey.Key
	ID      string

	// Version is the etag after the change. Empty for Removed.
	Version store.Version
	// PreviousVersion is the etag before the change. Empty for Inserted.
	PreviousVersion store.Version
	// Payload is the body after the change, when the stream carries new images.
	Payload []byte
}

// Ref returns the document reference the event applies to.
func (e ChangeEvent) Ref() string { return store.Ref(e.Key, e.ID) }

// Observer receives decoded change events.
type Observer interface {
	OnChange(ctx context.Context, event ChangeEvent) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event ChangeEvent) error

// OnChange calls f.
func (f ObserverFunc) OnChange(ctx context.Context, event ChangeEvent) error { return f(ctx, event) }

// Handler processes DynamoDB stream events for the document table.
type Handler struct {
	observer Observer
	logger   *zap.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(observer Observer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		observer: observer,
		logger:   logger,
	}
}

// Handle processes every record in the event and returns the combined
// error of the records that failed. Records are delivered in order; a
// failed record does not stop the rest of the batch.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	var result *multierror.Error
	for _, record := range event.Records {
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("Failed to process stream record",
				zap.String("event_id", record.EventID),
				zap.String("event_name", record.EventName),
				zap.Error(err),
			)
			result = multierror.Append(result, fmt.Errorf("record %s: %w", record.EventID, err))
		}
	}
	return result.ErrorOrNil()
}

// HandleBatch is Handle for event source mappings with ReportBatchItemFailures
// enabled. Each failed record is reported by sequence number so only those
// records are redelivered.
func (h *Handler) HandleBatch(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var response events.DynamoDBEventResponse
	for _, record := range event.Records {
		if ctx.Err() != nil {
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.DynamoDBBatchItemFailure{ItemIdentifier: record.Change.SequenceNumber})
			continue
		}
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("Failed to process stream record",
				zap.String("event_id", record.EventID),
				zap.String("sequence_number", record.Change.SequenceNumber),
				zap.Error(err),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.DynamoDBBatchItemFailure{ItemIdentifier: record.Change.SequenceNumber})
		}
	}
	return response, nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	event, err := Decode(record)
	if err != nil {
		return err
	}
	h.logger.Debug("Document changed",
		zap.String("kind", string(event.Kind)),
		zap.Stringer("key", event.Key),
		zap.String("id", event.ID),
		zap.String("version", string(event.Version)),
	)
	if h.observer == nil {
		return nil
	}
	return h.observer.OnChange(ctx, event)
}

// Decode converts a stream record into a ChangeEvent.
func Decode(record events.DynamoDBEventRecord) (ChangeEvent, error) {
	kind := ChangeKind(record.EventName)
	switch kind {
	case Inserted, Modified, Removed:
	default:
		return ChangeEvent{}, fmt.Errorf("stream: unknown event name %q", record.EventName)
	}

	key, id, err := DecodeKey(record.Change.Keys)
	if err != nil {
		return ChangeEvent{}, err
	}

	event := ChangeEvent{
		EventID:         record.EventID,
		Kind:            kind,
		Key:             key,
		ID:              id,
		PreviousVersion: store.Version(getStringAttr(record.Change.OldImage, dynamo.AttrETag)),
	}
	if kind != Removed {
		event.Version = store.Version(getStringAttr(record.Change.NewImage, dynamo.AttrETag))
		event.Payload = getBinaryAttr(record.Change.NewImage, dynamo.AttrBody)
	}
	return event, nil
}

// DecodeKey extracts the partition key and document id from a stream key.
func DecodeKey(streamKey map[string]events.DynamoDBAttributeValue) (partitionkey.Key, string, error) {
	pk := getStringAttr(streamKey, dynamo.AttrPK)
	if pk == "" {
		return partitionkey.Key{}, "", fmt.Errorf("stream: record has no %s attribute", dynamo.AttrPK)
	}
	key, err := partitionkey.TryParse(pk)
	if err != nil {
		return partitionkey.Key{}, "", fmt.Errorf("stream: decode %s: %w", dynamo.AttrPK, err)
	}
	id := getStringAttr(streamKey, dynamo.AttrID)
	if id == "" {
		return partitionkey.Key{}, "", fmt.Errorf("stream: record has no %s attribute", dynamo.AttrID)
	}
	return key, id, nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getBinaryAttr extracts a binary attribute from a DynamoDB stream image.
func getBinaryAttr(image map[string]events.DynamoDBAttributeValue, key string) []byte {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeBinary {
		return v.Binary()
	}
	return nil
}
