package stream

import (
	"context"
	"sync"

	"github.com/jacentio/occ/partitionkey"
	"github.com/jacentio/occ/store"
)

// VersionIndex is an Observer that tracks the latest version of every
// document seen on the stream. Removed documents are dropped.
type VersionIndex struct {
	mu       sync.RWMutex
	versions map[string]store.Version
}

var _ Observer = (*VersionIndex)(nil)

// NewVersionIndex creates an empty index.
func NewVersionIndex() *VersionIndex {
	return &VersionIndex{versions: make(map[string]store.Version)}
}

// OnChange applies the event to the index.
func (x *VersionIndex) OnChange(_ context.Context, event ChangeEvent) error {
	ref := event.Ref()

	x.mu.Lock()
	defer x.mu.Unlock()
	if event.Kind == Removed {
		delete(x.versions, ref)
		return nil
	}
	x.versions[ref] = event.Version
	return nil
}

// Latest returns the last version recorded for the document.
func (x *VersionIndex) Latest(key partitionkey.Key, id string) (store.Version, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	v, ok := x.versions[store.Ref(key, id)]
	return v, ok
}

// Len returns the number of tracked documents.
func (x *VersionIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.versions)
}
