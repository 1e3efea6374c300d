//go:build e2e

// Package e2e contains end-to-end integration tests against a real DynamoDB table.
// Run with: go test -tags=e2e -v ./e2e/...
//
// DYNAMODB_ENDPOINT points the client at DynamoDB Local or another emulator.
// AWS_PROFILE selects shared credentials as usual.
package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/occ/coordinator"
	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
	"github.com/jacentio/occ/store/dynamo"
	"github.com/jacentio/occ/store/storetest"
)

const tablePrefix = "occ-e2e-test"

var (
	tableName string
	ddbClient *dynamodb.Client
	docs      *dynamo.Store
)

func TestMain(m *testing.M) {
	tableName = fmt.Sprintf("%s-%s", tablePrefix, uuid.New().String()[:8])

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint := os.Getenv("DYNAMODB_ENDPOINT"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	fmt.Printf("Creating table %s\n", tableName)
	if err := dynamo.CreateTable(ctx, ddbClient, tableName, 2*time.Minute); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	storeConfig := dynamo.DefaultConfig()
	storeConfig.TableName = tableName
	storeConfig.Logger = zap.NewNop()
	docs = dynamo.New(ddbClient, storeConfig)

	code := m.Run()

	if err := dynamo.DeleteTable(context.Background(), ddbClient, tableName); err != nil {
		fmt.Printf("Failed to delete table %s: %v\n", tableName, err)
	}
	os.Exit(code)
}

// isolated gives each test its own namespace in the shared table by
// prefixing document ids.
type isolated struct {
	store.Client
	prefix string
}

func newIsolated(t *testing.T) store.Client {
	return &isolated{Client: docs, prefix: uuid.New().String() + "/"}
}

func (c *isolated) restore(doc store.Document, err error) (store.Document, error) {
	doc.ID = strings.TrimPrefix(doc.ID, c.prefix)
	return doc, err
}

func (c *isolated) Read(ctx context.Context, key partitionkey.Key, id string) (store.Document, error) {
	return c.restore(c.Client.Read(ctx, key, c.prefix+id))
}

func (c *isolated) Create(ctx context.Context, key partitionkey.Key, id string, payload []byte) (store.Document, error) {
	return c.restore(c.Client.Create(ctx, key, c.prefix+id, payload))
}

func (c *isolated) ConditionalWrite(ctx context.Context, doc store.Document, expected store.Version) (store.Document, error) {
	doc.ID = c.prefix + doc.ID
	return c.restore(c.Client.ConditionalWrite(ctx, doc, expected))
}

// --- Store Tests ---

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, newIsolated)
}

// --- Coordinator Tests ---

func TestCoordinator_Contention(t *testing.T) {
	ctx := context.Background()
	coordConfig := coordinator.DefaultConfig()
	coordConfig.Logger = zaptest.NewLogger(t)
	c := coordinator.New(newIsolated(t), coordConfig)

	key := partitionkey.MustNew(partitionkey.String("e2e"), partitionkey.Number(1))
	const writers = 10

	var applied atomic.Int64
	mutate := func(doc store.Document) (store.Document, error) {
		n := 0
		if len(doc.Payload) > 0 {
			fmt.Sscanf(string(doc.Payload), "%d", &n)
		}
		doc.Payload = []byte(fmt.Sprintf("%d", n+1))
		return doc, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			if _, err := c.ApplyMutation(gctx, key, "counter", mutate, coordinator.NewExponential(50)); err != nil {
				return err
			}
			applied.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, err := c.ApplyMutation(ctx, key, "counter", func(doc store.Document) (store.Document, error) {
		return doc, nil
	}, coordinator.DefaultPolicy())
	if err != nil {
		t.Fatalf("final read: %v", err)
	}
	if string(doc.Payload) != fmt.Sprintf("%d", writers) {
		t.Errorf("expected counter %d, got %s", writers, doc.Payload)
	}
	if applied.Load() != writers {
		t.Errorf("expected %d successful mutations, got %d", writers, applied.Load())
	}
}

func TestCoordinator_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	client := newIsolated(t)
	c := coordinator.New(client, coordinator.DefaultConfig())
	key := partitionkey.MustNew(partitionkey.String("e2e"), partitionkey.Number(2))

	if _, err := client.Create(ctx, key, "doc", []byte("0")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Each mutation bumps the document behind the coordinator's back.
	interfere := func(doc store.Document) (store.Document, error) {
		current, err := client.Read(ctx, key, "doc")
		if err != nil {
			return doc, err
		}
		if _, err := client.ConditionalWrite(ctx, current, current.Version); err != nil {
			return doc, err
		}
		return doc, nil
	}

	_, err := c.ApplyMutation(ctx, key, "doc", interfere, coordinator.DefaultPolicy())
	if coordinator.KindOf(err) != coordinator.RetriesExhausted {
		t.Fatalf("expected retries exhausted, got %v", err)
	}
}
