// Package dynamo provides a store.Client backed by a DynamoDB table.
//
// # Table layout
//
// One item per document:
//
//	pk          S  wire form of the partition key (hash key), e.g. ["tenant",7]
//	id          S  document id (range key)
//	etag        S  version token, a random UUID issued on every write
//	body        B  payload
//	updated_at  S  RFC 3339 timestamp of the last write
//
// Create uses attribute_not_exists(pk); ConditionalWrite uses
// attribute_exists(pk) AND etag = :expected. Both are single PutItem calls,
// so DynamoDB's per-item conditional write is the only isolation mechanism.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
)

// Attribute names of the documents table.
const (
	AttrPK        = "pk"
	AttrID        = "id"
	AttrETag      = "etag"
	AttrBody      = "body"
	AttrUpdatedAt = "updated_at"
)

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// item is the marshalled form of a document.
type item struct {
	PK        string `dynamodbav:"pk"`
	ID        string `dynamodbav:"id"`
	ETag      string `dynamodbav:"etag"`
	Body      []byte `dynamodbav:"body,omitempty"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// Store is a DynamoDB-backed store.Client.
type Store struct {
	client API
	config Config

	// Now returns the timestamp recorded on writes.
	Now func() time.Time
}

var _ store.Client = (*Store)(nil)

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		Now:    time.Now,
	}
}

// TableName returns the configured documents table.
func (s *Store) TableName() string {
	return s.config.TableName
}

// Read implements store.Client.
func (s *Store) Read(ctx context.Context, key partitionkey.Key, id string) (store.Document, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            primaryKey(key, id),
		ConsistentRead: aws.Bool(!s.config.EventuallyConsistent),
	})
	if err != nil {
		return store.Document{}, s.mapError(store.OpRead, err)
	}
	if len(result.Item) == 0 {
		return store.Document{}, store.NewError(store.StatusNotFound, store.OpRead, store.ErrNotFound)
	}

	doc, err := unmarshalItem(result.Item)
	if err != nil {
		return store.Document{}, store.NewError(store.StatusInternal, store.OpRead, err)
	}
	// Decoding the stored pk is unnecessary: the caller's key is canonical.
	doc.Key = key
	return doc, nil
}

// Create implements store.Client.
func (s *Store) Create(ctx context.Context, key partitionkey.Key, id string, payload []byte) (store.Document, error) {
	doc := store.Document{Key: key, ID: id, Payload: payload, Version: newVersion()}
	av, err := s.marshalItem(doc)
	if err != nil {
		return store.Document{}, store.NewError(store.StatusBadRequest, store.OpCreate, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.TableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{
			"#pk": AttrPK,
		},
	})
	if err != nil {
		return store.Document{}, s.mapError(store.OpCreate, err)
	}
	return doc.Clone(), nil
}

// ConditionalWrite implements store.Client.
func (s *Store) ConditionalWrite(ctx context.Context, doc store.Document, expected store.Version) (store.Document, error) {
	next := store.Document{Key: doc.Key, ID: doc.ID, Payload: doc.Payload, Version: newVersion()}
	av, err := s.marshalItem(next)
	if err != nil {
		return store.Document{}, store.NewError(store.StatusBadRequest, store.OpConditionalWrite, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.TableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(#pk) AND #etag = :expected_etag"),
		ExpressionAttributeNames: map[string]string{
			"#pk":   AttrPK,
			"#etag": AttrETag,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected_etag": &types.AttributeValueMemberS{Value: string(expected)},
		},
		// The old item tells a missing document from a stale version.
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return store.Document{}, s.mapError(store.OpConditionalWrite, err)
	}
	return next.Clone(), nil
}

func (s *Store) marshalItem(doc store.Document) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(item{
		PK:        partitionkey.Encode(doc.Key),
		ID:        doc.ID,
		ETag:      string(doc.Version),
		Body:      doc.Payload,
		UpdatedAt: s.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", doc.Ref(), err)
	}
	return av, nil
}

// unmarshalItem decodes a stored item. The key is parsed from pk.
func unmarshalItem(raw map[string]types.AttributeValue) (store.Document, error) {
	var it item
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return store.Document{}, fmt.Errorf("unmarshal item: %w", err)
	}
	key, err := partitionkey.TryParse(it.PK)
	if err != nil {
		return store.Document{}, fmt.Errorf("unmarshal item %s#%s: %w", it.PK, it.ID, err)
	}
	return store.Document{
		Key:     key,
		ID:      it.ID,
		Payload: it.Body,
		Version: store.Version(it.ETag),
	}, nil
}

func primaryKey(key partitionkey.Key, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: partitionkey.Encode(key)},
		AttrID: &types.AttributeValueMemberS{Value: id},
	}
}

func newVersion() store.Version {
	return store.Version(uuid.NewString())
}
