package partitionkey

import (
	"bytes"
	"encoding/json"

	"github.com/buger/jsonparser"
)

// TryParse parses the wire form produced by Encode.
//
// Any valid JSON array whose elements are null, booleans, numbers, strings or
// the empty object is accepted. Everything else, including free text, yields
// a *ParseError that matches ErrMalformed.
func TryParse(text string) (Key, error) {
	data := []byte(text)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return None, &ParseError{Input: text, Reason: "expected a JSON array"}
	}
	// jsonparser is permissive about surrounding structure; reject anything
	// that is not a single well-formed JSON value up front.
	if !json.Valid(trimmed) {
		return None, &ParseError{Input: text, Reason: "invalid JSON"}
	}

	var (
		values   []Value
		parseErr *ParseError
	)
	_, err := jsonparser.ArrayEach(trimmed, func(raw []byte, dataType jsonparser.ValueType, offset int, err error) {
		if parseErr != nil {
			return
		}
		if err != nil {
			parseErr = &ParseError{Input: text, Offset: offset, Reason: "invalid element", Err: err}
			return
		}
		v, reason, err := parseElement(raw, dataType)
		if reason != "" {
			parseErr = &ParseError{Input: text, Offset: offset, Reason: reason, Err: err}
			return
		}
		values = append(values, v)
	})
	if parseErr != nil {
		return None, parseErr
	}
	if err != nil {
		return None, &ParseError{Input: text, Reason: "invalid array", Err: err}
	}

	k, err := New(values...)
	if err != nil {
		return None, &ParseError{Input: text, Reason: "invalid component", Err: err}
	}
	return k, nil
}

// parseElement converts one array element. A non-empty reason means failure.
func parseElement(raw []byte, dataType jsonparser.ValueType) (Value, string, error) {
	switch dataType {
	case jsonparser.Null:
		return Null(), "", nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Value{}, "invalid boolean", err
		}
		return Bool(b), "", nil
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return Value{}, "number out of range", err
		}
		return Number(f), "", nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Value{}, "invalid string", err
		}
		return String(s), "", nil
	case jsonparser.Object:
		inner := bytes.TrimSpace(raw)
		if len(inner) < 2 || len(bytes.TrimSpace(inner[1:len(inner)-1])) != 0 {
			return Value{}, "only the empty object is allowed", nil
		}
		return Undefined(), "", nil
	default:
		return Value{}, "unsupported element type " + dataType.String(), nil
	}
}
