package coordinator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
)

// Mutation computes the next revision of a document from the current one.
// On the create path it receives a document with only Key and ID set.
// Mutations may run more than once per invocation and must not keep state
// across calls. Key, ID and Version of the result are ignored.
type Mutation func(current store.Document) (store.Document, error)

// Config holds configuration for the Coordinator.
type Config struct {
	// Policy is used when ApplyMutation is called with a nil policy.
	// Default: DefaultPolicy()
	Policy RetryPolicy

	// Logger receives state transitions at Debug and conflicts at Warn.
	// Default: no-op.
	Logger *zap.Logger

	// Metrics is optional; nil disables metrics.
	Metrics *Metrics

	// Clock drives backoff waits and durations.
	// Default: the wall clock.
	Clock clock.Clock
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Policy: DefaultPolicy(),
		Logger: zap.NewNop(),
		Clock:  clock.New(),
	}
}

// validate fills unset values with defaults.
func (c *Config) validate() {
	if c.Policy == nil {
		c.Policy = DefaultPolicy()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

// Coordinator performs optimistic read-modify-write cycles against a
// store.Client. It holds no mutable state and is safe for concurrent use;
// concurrent invocations on the same document are isolated only by the
// store's version check.
type Coordinator struct {
	client  store.Client
	config  Config
	logger  *zap.Logger
	metrics *Metrics
	clock   clock.Clock
}

// New creates a new Coordinator instance.
func New(client store.Client, config Config) *Coordinator {
	config.validate()
	return &Coordinator{
		client:  client,
		config:  config,
		logger:  config.Logger,
		metrics: config.Metrics,
		clock:   config.Clock,
	}
}

// invocation is the state of one ApplyMutation call.
type invocation struct {
	key    partitionkey.Key
	id     string
	mutate Mutation
	policy RetryPolicy
	state  RetryState
	logger *zap.Logger

	// last is the most recent document read.
	last store.Document
}

// ApplyMutation reads (key, id), applies mutate and writes the result back
// conditioned on the version it read, retrying version mismatches under
// policy. A document that doesn't exist is created from mutate applied to
// an empty document. A nil policy means the configured one.
//
// On success the stored document with its new version is returned. Every
// failure is an *Error; match kinds with errors.Is against the package
// sentinels or use KindOf.
func (c *Coordinator) ApplyMutation(ctx context.Context, key partitionkey.Key, id string, mutate Mutation, policy RetryPolicy) (store.Document, error) {
	if policy == nil {
		policy = c.config.Policy
	}
	start := c.clock.Now()

	inv := &invocation{
		key:    key,
		id:     id,
		mutate: mutate,
		policy: policy,
		state:  RetryState{MaxAttempts: policy.MaxAttempts()},
		logger: c.logger.With(zap.Stringer("key", key), zap.String("id", id)),
	}

	doc, err := c.run(ctx, inv)

	kind := KindOf(err)
	c.metrics.observeInvocation(kind, c.clock.Since(start))
	if err != nil {
		inv.logger.Debug("Mutation failed",
			zap.Stringer("kind", kind),
			zap.Uint("attempts", inv.state.Attempt),
			zap.Error(err))
		return store.Document{}, err
	}
	inv.logger.Debug("Mutation applied",
		zap.Uint("attempts", inv.state.Attempt),
		zap.String("version", string(doc.Version)))
	return doc, nil
}

func (c *Coordinator) run(ctx context.Context, inv *invocation) (store.Document, error) {
	switch {
	case inv.key.IsNone():
		return store.Document{}, &Error{Kind: InvalidArgument, Err: errors.New("partition key is required")}
	case strings.TrimSpace(inv.id) == "":
		return store.Document{}, &Error{Kind: InvalidArgument, Err: errors.New("document id is required")}
	case inv.mutate == nil:
		return store.Document{}, &Error{Kind: InvalidArgument, Err: errors.New("mutation is required")}
	}

	current, err := c.fetch(ctx, inv)
	switch {
	case err == nil:
	case KindOf(err) == NotFound:
		doc, created, err := c.create(ctx, inv)
		if err != nil || created {
			return doc, err
		}
		current = doc
	default:
		return store.Document{}, err
	}

	for {
		doc, err := c.write(ctx, inv, current)
		if err == nil {
			return doc, nil
		}
		if KindOf(err) != VersionMismatch {
			return store.Document{}, err
		}

		if !inv.policy.ShouldRetry(inv.state.Attempt, inv.state.MaxAttempts, VersionMismatch) {
			inv.logger.Info("Retry budget exhausted",
				zap.Uint("attempts", inv.state.Attempt),
				zap.String("version", string(current.Version)))
			return store.Document{}, c.fail(inv, RetriesExhausted, store.StatusPreconditionFailed, err)
		}

		delay := inv.policy.Backoff(inv.state.Attempt)
		inv.logger.Warn("Version conflict, retrying",
			zap.Uint("attempt", inv.state.Attempt),
			zap.Uint("max_attempts", inv.state.MaxAttempts),
			zap.Duration("backoff", delay))
		if err := c.wait(ctx, inv, delay); err != nil {
			return store.Document{}, err
		}

		current, err = c.fetch(ctx, inv)
		if err != nil {
			return store.Document{}, err
		}
	}
}

// fetch reads the current revision of the document.
func (c *Coordinator) fetch(ctx context.Context, inv *invocation) (store.Document, error) {
	if err := c.checkCancelled(ctx, inv); err != nil {
		return store.Document{}, err
	}
	inv.logger.Debug("Fetching document")

	doc, err := c.client.Read(ctx, inv.key, inv.id)
	if err != nil {
		return store.Document{}, c.storeFailure(ctx, inv, err)
	}
	inv.last = doc
	return doc, nil
}

// create runs the create path. created is false when the create lost a race
// and doc is the re-read revision to continue from.
func (c *Coordinator) create(ctx context.Context, inv *invocation) (doc store.Document, created bool, err error) {
	candidate, err := inv.mutate(store.Document{Key: inv.key, ID: inv.id})
	if err != nil {
		return store.Document{}, false, c.fail(inv, Fatal, store.StatusOK, err)
	}
	if err := c.checkCancelled(ctx, inv); err != nil {
		return store.Document{}, false, err
	}
	inv.logger.Debug("Creating document")

	doc, err = c.client.Create(ctx, inv.key, inv.id, candidate.Payload)
	if err == nil {
		return doc, true, nil
	}
	if ctx.Err() != nil {
		return store.Document{}, false, c.fail(inv, Cancelled, store.StatusOf(err), ctx.Err())
	}
	if store.StatusOf(err) != store.StatusConflict {
		return store.Document{}, false, c.fail(inv, Fatal, store.StatusOf(err), err)
	}

	inv.state.LastFailure = CreationConflict
	c.metrics.observeCreationConflict()
	if !inv.policy.ShouldRetry(inv.state.Attempt, inv.state.MaxAttempts, CreationConflict) {
		return store.Document{}, false, c.fail(inv, CreationConflict, store.StatusConflict, err)
	}
	inv.logger.Warn("Create lost a race, reading the winner")

	doc, err = c.fetch(ctx, inv)
	if err != nil {
		return store.Document{}, false, err
	}
	return doc, false, nil
}

// write applies the mutation to current and issues the conditional write.
func (c *Coordinator) write(ctx context.Context, inv *invocation, current store.Document) (store.Document, error) {
	candidate, err := inv.mutate(current.Clone())
	if err != nil {
		return store.Document{}, c.fail(inv, Fatal, store.StatusOK, err)
	}
	// The version travels with the read, never with the mutation.
	candidate.Key = inv.key
	candidate.ID = inv.id
	candidate.Version = current.Version

	if err := c.checkCancelled(ctx, inv); err != nil {
		return store.Document{}, err
	}
	inv.state.Attempt++
	inv.logger.Debug("Writing document",
		zap.Uint("attempt", inv.state.Attempt),
		zap.String("expected_version", string(current.Version)))

	doc, err := c.client.ConditionalWrite(ctx, candidate, current.Version)
	if err == nil {
		c.metrics.observeWrite("ok")
		inv.state.LastFailure = None
		return doc, nil
	}

	status := store.StatusOf(err)
	switch {
	case ctx.Err() != nil:
		c.metrics.observeWrite("error")
		return store.Document{}, c.fail(inv, Cancelled, status, ctx.Err())
	case status == store.StatusPreconditionFailed:
		c.metrics.observeWrite("version_mismatch")
		inv.state.LastFailure = VersionMismatch
		return store.Document{}, &Error{Kind: VersionMismatch, Status: status, Err: err}
	case status == store.StatusNotFound:
		c.metrics.observeWrite("not_found")
		return store.Document{}, c.fail(inv, NotFound, status, err)
	default:
		c.metrics.observeWrite("error")
		return store.Document{}, c.fail(inv, Fatal, status, err)
	}
}

// storeFailure classifies a failed read.
func (c *Coordinator) storeFailure(ctx context.Context, inv *invocation, err error) error {
	status := store.StatusOf(err)
	switch {
	case ctx.Err() != nil:
		return c.fail(inv, Cancelled, status, ctx.Err())
	case status == store.StatusNotFound:
		return c.fail(inv, NotFound, status, err)
	default:
		return c.fail(inv, Fatal, status, err)
	}
}

// wait blocks for d on the configured clock or until ctx is done.
func (c *Coordinator) wait(ctx context.Context, inv *invocation, d time.Duration) error {
	if d <= 0 {
		return c.checkCancelled(ctx, inv)
	}
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return c.fail(inv, Cancelled, store.StatusOK, ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) checkCancelled(ctx context.Context, inv *invocation) error {
	if err := ctx.Err(); err != nil {
		return c.fail(inv, Cancelled, store.StatusOK, err)
	}
	return nil
}

// fail builds the terminal error and records kind in the retry state.
func (c *Coordinator) fail(inv *invocation, kind FailureKind, status store.Status, err error) *Error {
	// exhaustion keeps the version mismatch that caused it
	if kind != RetriesExhausted {
		inv.state.LastFailure = kind
	}
	e := &Error{
		Kind:    kind,
		Status:  status,
		State:   inv.state,
		Version: inv.last.Version,
		Err:     err,
	}
	if kind == RetriesExhausted || kind == Fatal {
		e.Document = inv.last.Clone()
	}
	return e
}
