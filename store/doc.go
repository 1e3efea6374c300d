// Package store defines the versioned document store contract used by the
// optimistic concurrency coordinator.
//
// A document is addressed by a partition key and an id and carries an opaque
// [Version] token. Stores issue a new token on every successful write and
// accept a conditional write only when the caller echoes the current token:
// that compare-and-swap is the only isolation mechanism between concurrent
// writers.
//
// # Implementations
//
//   - [github.com/jacentio/occ/store/dynamo] - DynamoDB table, one item per document
//   - [github.com/jacentio/occ/store/bolt] - local bbolt file, sharded by partition key
//   - [github.com/jacentio/occ/store/memory] - in-process map for tests and development
//
// [github.com/jacentio/occ/store/storetest] holds the conformance suite every
// implementation runs.
//
// # Errors
//
// Failures are reported as [*StatusError], which carries a [Status] and
// matches the sentinels below with errors.Is:
//
//   - [ErrNotFound] - document doesn't exist
//   - [ErrConflict] - create raced with an existing document
//   - [ErrPreconditionFailed] - conditional write carried a stale version
//
// Use [StatusOf] to classify any error.
package store
