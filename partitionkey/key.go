package partitionkey

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Key is a partition key: an ordered sequence of components.
//
// The zero Key is None, the key of a document stored without a partition key.
// A Key never changes after construction; Values returns a copy.
type Key struct {
	values []Value
}

// None is the omitted partition key. It encodes as [].
var None = Key{}

// New builds a Key from components, rejecting invalid ones.
func New(values ...Value) (Key, error) {
	if len(values) == 0 {
		return None, nil
	}
	out := make([]Value, len(values))
	for i, v := range values {
		if err := v.validate(); err != nil {
			return None, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = v
	}
	return Key{values: out}, nil
}

// MustNew is like New but panics on invalid components.
func MustNew(values ...Value) Key {
	k, err := New(values...)
	if err != nil {
		panic(err)
	}
	return k
}

// FromString returns a single-component string key.
// Invalid UTF-8 yields an error.
func FromString(s string) (Key, error) { return New(String(s)) }

// FromBool returns a single-component boolean key.
func FromBool(b bool) Key { return Key{values: []Value{Bool(b)}} }

// FromNumber returns a single-component numeric key.
func FromNumber(f float64) (Key, error) { return New(Number(f)) }

// Of builds a Key from application-supplied scalars.
//
// nil maps to Null; bool, string, every integer and float kind and
// json.Number map to their variant. A Value is used as-is.
func Of(vals ...any) (Key, error) {
	values := make([]Value, 0, len(vals))
	for i, raw := range vals {
		v, err := valueOf(raw)
		if err != nil {
			return None, fmt.Errorf("component %d: %w", i, err)
		}
		values = append(values, v)
	}
	return New(values...)
}

func valueOf(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidNumber, err)
		}
		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, raw)
	}
}

// IsNone reports whether k has no components.
func (k Key) IsNone() bool { return len(k.values) == 0 }

// Len returns the number of components.
func (k Key) Len() int { return len(k.values) }

// At returns the i'th component. It panics if i is out of range.
func (k Key) At(i int) Value { return k.values[i] }

// Values returns a copy of the components.
func (k Key) Values() []Value {
	if len(k.values) == 0 {
		return nil
	}
	return append([]Value(nil), k.values...)
}

// String returns the canonical wire form.
func (k Key) String() string { return Encode(k) }

// Equal reports whether k and other have identical component sequences.
func (k Key) Equal(other Key) bool { return Equal(k, other) }

// Compare orders k against other; see Compare.
func (k Key) Compare(other Key) int { return Compare(k, other) }

// Hash returns the stable hash of k; see Hash.
func (k Key) Hash() uint64 { return Hash(k) }

// MarshalJSON encodes k as its wire-form JSON array.
func (k Key) MarshalJSON() ([]byte, error) {
	return AppendEncode(nil, k), nil
}

// UnmarshalJSON parses a wire-form JSON array.
func (k *Key) UnmarshalJSON(data []byte) error {
	parsed, err := TryParse(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText encodes k as its wire form.
func (k Key) MarshalText() ([]byte, error) {
	return AppendEncode(nil, k), nil
}

// UnmarshalText parses the wire form.
func (k *Key) UnmarshalText(text []byte) error {
	return k.UnmarshalJSON(text)
}
