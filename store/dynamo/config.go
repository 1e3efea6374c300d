package dynamo

import "go.uber.org/zap"

// Config holds configuration for the Store.
type Config struct {
	// TableName is the documents table. It needs a string hash key "pk" and a
	// string range key "id" (see CreateTable).
	// Default: "occ_documents"
	TableName string

	// EventuallyConsistent switches Read to eventually consistent GetItem.
	// A stale read is safe for the coordinator (the conditional write
	// rejects it) but costs an extra round trip on conflict.
	// Default: false (strongly consistent reads)
	EventuallyConsistent bool

	// Logger receives classification of unexpected service errors.
	// Default: no-op.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TableName: "occ_documents",
	}
}

// validate fills unset values with defaults.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = "occ_documents"
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
