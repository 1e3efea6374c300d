// Package coordinator implements optimistic read-modify-write against a
// versioned document store.
//
// # Flow
//
// ApplyMutation reads the document, applies the caller's Mutation and writes
// the result with store.Client.ConditionalWrite, expecting the version it
// just read:
//
//	Fetching -> Mutating -> Writing -> Succeeded
//	                           |
//	                           +-> version mismatch -> (backoff) -> Fetching
//	                           +-> budget exhausted -> RetriesExhausted
//	                           +-> anything else    -> NotFound / Fatal
//
// A missing document is created from the mutation applied to an empty
// document. If the create loses a race to another creator, the coordinator
// reads the winner once and continues with a conditional write; that
// fallback does not count against the retry budget.
//
// # Retry
//
// The budget and delays come from a RetryPolicy. DefaultPolicy allows three
// writes with no delay; Exponential adds capped, jittered backoff.
// Only version mismatches and the create fallback are ever retried.
//
// # Cancellation
//
// The context is checked before every store call and during backoff, and is
// passed to the store. A cancelled invocation fails with Cancelled, except
// when a write already succeeded: that result is returned.
package coordinator
