package partitionkey

import (
	"github.com/cespare/xxhash/v2"
)

// Compare orders keys lexicographically by component. A key that is a prefix
// of another sorts first. Within one position components are ranked
// Undefined < Null < Boolean < Number < String and then by natural order.
//
// The result is -1, 0 or +1.
func Compare(a, b Key) int {
	n := len(a.values)
	if len(b.values) < n {
		n = len(b.values)
	}
	for i := 0; i < n; i++ {
		if c := compareValue(a.values[i], b.values[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a.values) < len(b.values):
		return -1
	case len(a.values) > len(b.values):
		return 1
	default:
		return 0
	}
}

// Equal reports whether a and b hold the same component sequence.
// It agrees with Compare and with Encode.
func Equal(a, b Key) bool {
	return Compare(a, b) == 0
}

// Hash returns the xxhash64 of the canonical encoding. Keys that are Equal
// hash equally, in every process.
func Hash(k Key) uint64 {
	var buf [64]byte
	return xxhash.Sum64(AppendEncode(buf[:0], k))
}
