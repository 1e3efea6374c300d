package partitionkey

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is returned when a zero Value is used to build a Key.
	ErrInvalidValue = errors.New("partitionkey: invalid value")

	// ErrInvalidNumber is returned for NaN or infinite numeric components.
	ErrInvalidNumber = errors.New("partitionkey: number is not representable")

	// ErrInvalidString is returned for string components that are not valid UTF-8.
	ErrInvalidString = errors.New("partitionkey: string is not valid UTF-8")

	// ErrUnsupportedType is returned by Of for Go values with no key variant.
	ErrUnsupportedType = errors.New("partitionkey: unsupported value type")

	// ErrMalformed is returned when text is not a partition key wire form.
	ErrMalformed = errors.New("partitionkey: malformed wire form")

	// ErrPathCount is returned when a key does not match its definition's path count.
	ErrPathCount = errors.New("partitionkey: component count does not match definition")
)

// ParseError describes why TryParse rejected its input.
type ParseError struct {
	Input  string
	Offset int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	input := e.Input
	if len(input) > 64 {
		input = input[:64] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("partitionkey: cannot parse %q at offset %d: %s: %v", input, e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("partitionkey: cannot parse %q at offset %d: %s", input, e.Offset, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ErrMalformed for every ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}
