// Package shard routes partition keys to a fixed number of storage shards.
package shard

import (
	"fmt"

	"github.com/jacentio/occ/partitionkey"
)

// MaxShards is the largest supported shard count.
const MaxShards = 256

// Clamp bounds numShards to [1, MaxShards].
func Clamp(numShards int) int {
	if numShards < 1 {
		return 1
	}
	if numShards > MaxShards {
		return MaxShards
	}
	return numShards
}

// For returns the shard index of key.
// With numShards=1, every key goes to shard 0. Otherwise keys are spread by
// their canonical hash, so equal keys always land on the same shard.
func For(key partitionkey.Key, numShards int) int {
	numShards = Clamp(numShards)
	if numShards == 1 {
		return 0
	}
	return int(key.Hash() % uint64(numShards))
}

// Name returns the storage name of shard i ("p00" through "pff").
func Name(i int) string {
	return fmt.Sprintf("p%02x", i)
}

// Bucket returns the storage name of the shard key routes to.
func Bucket(key partitionkey.Key, numShards int) string {
	return Name(For(key, numShards))
}

// Names returns the storage names of all numShards shards in order.
func Names(numShards int) []string {
	numShards = Clamp(numShards)
	names := make([]string, numShards)
	for i := range names {
		names[i] = Name(i)
	}
	return names
}
