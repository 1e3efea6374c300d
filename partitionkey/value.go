package partitionkey

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// Kind identifies the variant held by a Value.
//
// Kinds are declared in sort order: when two values of different kinds are
// compared, the one with the lower Kind sorts first.
type Kind uint8

const (
	// KindInvalid is the zero Kind. A Value of this kind was never constructed.
	KindInvalid Kind = iota
	KindUndefined
	KindNull
	KindBoolean
	KindNumber
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBoolean:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Value is a single partition key component.
//
// The zero Value is invalid; use Undefined, Null, Bool, Number or String.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
}

// Undefined returns the sentinel for a key path that is absent from a document.
// It is distinct from Null.
func Undefined() Value { return Value{kind: KindUndefined} }

// Null returns the JSON null component.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean component.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Number returns a numeric component. Negative zero is stored as zero.
// NaN and infinities are accepted here but rejected when the Value is placed
// in a Key.
func Number(f float64) Value {
	if f == 0 {
		f = 0
	}
	return Value{kind: KindNumber, n: f}
}

// String returns a string component.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the boolean held by v and whether v is a Boolean.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBoolean }

// AsNumber returns the number held by v and whether v is a Number.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsString returns the string held by v and whether v is a String.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// String returns the canonical wire form of the single component.
func (v Value) String() string {
	return string(appendValue(nil, v))
}

// validate reports why v cannot be part of a Key.
func (v Value) validate() error {
	switch v.kind {
	case KindUndefined, KindNull, KindBoolean:
		return nil
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return fmt.Errorf("%w: %s", ErrInvalidNumber, strconv.FormatFloat(v.n, 'g', -1, 64))
		}
		return nil
	case KindString:
		if !utf8.ValidString(v.s) {
			return fmt.Errorf("%w: %q", ErrInvalidString, v.s)
		}
		return nil
	default:
		return ErrInvalidValue
	}
}

// compareValue orders two valid values by kind rank, then by natural order.
func compareValue(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindBoolean:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindNumber:
		switch {
		case a.n < b.n:
			return -1
		case a.n > b.n:
			return 1
		default:
			return 0
		}
	case KindString:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		default:
			return 0
		}
	default:
		// Undefined and Null carry no payload.
		return 0
	}
}
