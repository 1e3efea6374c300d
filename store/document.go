package store

import (
	"context"

	"github.com/jacentio/occ/partitionkey"
)

// Version is an opaque revision token issued by a store (an entity tag).
// It is empty only for documents that were never written.
type Version string

// Document is a stored document at one revision.
type Document struct {
	// Key is the partition key.
	Key partitionkey.Key

	// ID identifies the document within its partition.
	ID string

	// Payload is the document body. Stores treat it as opaque bytes.
	Payload []byte

	// Version is the token of the revision Payload belongs to.
	Version Version
}

// Clone returns a copy of d that shares no memory with it.
func (d Document) Clone() Document {
	if d.Payload != nil {
		d.Payload = append([]byte(nil), d.Payload...)
	}
	return d
}

// Ref returns a printable reference (e.g., `["tenant"]#doc-1`).
func (d Document) Ref() string {
	return Ref(d.Key, d.ID)
}

// Ref returns the printable reference of (key, id).
func Ref(key partitionkey.Key, id string) string {
	return key.String() + "#" + id
}

// Operation names used in StatusError.Op.
const (
	OpRead             = "read"
	OpCreate           = "create"
	OpConditionalWrite = "conditional_write"
)

// Client is the versioned document store consumed by the coordinator.
//
// Implementations issue a new Version on every successful Create and
// ConditionalWrite and return failures as *StatusError (or as the package
// sentinels).
type Client interface {
	// Read returns the current revision of (key, id), or ErrNotFound.
	Read(ctx context.Context, key partitionkey.Key, id string) (Document, error)

	// Create stores a new document, or fails with ErrConflict if (key, id) exists.
	Create(ctx context.Context, key partitionkey.Key, id string, payload []byte) (Document, error)

	// ConditionalWrite replaces doc only if its current version equals expected.
	// It fails with ErrPreconditionFailed on a stale version and ErrNotFound if
	// the document no longer exists.
	ConditionalWrite(ctx context.Context, doc Document, expected Version) (Document, error)
}
