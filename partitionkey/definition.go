package partitionkey

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/buger/jsonparser"
)

// PartitionKind selects how a container distributes keys across partitions.
type PartitionKind string

const (
	PartitionHash  PartitionKind = "Hash"
	PartitionRange PartitionKind = "Range"
)

// DefinitionVersion selects the hashing scheme of a definition.
type DefinitionVersion int

const (
	V1 DefinitionVersion = 1
	V2 DefinitionVersion = 2
)

// Definition describes where a container finds the partition key inside its
// documents. Each path is a JSON pointer such as "/tenant" or "/address/zip";
// a composite key has one path per component, in order.
type Definition struct {
	Paths   []string
	Kind    PartitionKind
	Version DefinitionVersion
}

func (d Definition) kind() PartitionKind {
	if d.Kind == "" {
		return PartitionHash
	}
	return d.Kind
}

func (d Definition) version() DefinitionVersion {
	if d.Version == 0 {
		return V1
	}
	return d.Version
}

// Equivalent reports whether two definitions route documents identically:
// same paths in the same order, same kind and same version. Unset kind and
// version default to Hash and V1.
func Equivalent(a, b Definition) bool {
	if a.kind() != b.kind() || a.version() != b.version() {
		return false
	}
	if len(a.Paths) != len(b.Paths) {
		return false
	}
	for i := range a.Paths {
		if a.Paths[i] != b.Paths[i] {
			return false
		}
	}
	return true
}

// Validate checks that k has one component per path.
func (d Definition) Validate(k Key) error {
	if k.Len() != len(d.Paths) {
		return fmt.Errorf("%w: key has %d, definition has %d", ErrPathCount, k.Len(), len(d.Paths))
	}
	return nil
}

// Extract reads the partition key of a JSON document. A missing path yields
// Undefined and a JSON null yields Null. Paths that resolve to objects or
// arrays are rejected.
func (d Definition) Extract(payload []byte) (Key, error) {
	if !json.Valid(payload) {
		return None, fmt.Errorf("partitionkey: extract: payload is not valid JSON")
	}
	values := make([]Value, 0, len(d.Paths))
	for _, path := range d.Paths {
		segments, err := splitPointer(path)
		if err != nil {
			return None, err
		}
		raw, dataType, _, err := jsonparser.Get(payload, segments...)
		if errors.Is(err, jsonparser.KeyPathNotFoundError) || dataType == jsonparser.NotExist {
			values = append(values, Undefined())
			continue
		}
		if err != nil {
			return None, fmt.Errorf("partitionkey: extract %s: %w", path, err)
		}
		v, reason, err := parseElement(raw, dataType)
		if reason != "" {
			if err != nil {
				return None, fmt.Errorf("partitionkey: extract %s: %s: %w", path, reason, err)
			}
			return None, fmt.Errorf("partitionkey: extract %s: %s", path, reason)
		}
		if v.Kind() == KindUndefined {
			// {} in a document is an object, not the undefined sentinel.
			return None, fmt.Errorf("partitionkey: extract %s: path resolves to an object", path)
		}
		values = append(values, v)
	}
	return New(values...)
}

// splitPointer splits a JSON pointer into unescaped segments.
func splitPointer(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") || len(path) < 2 {
		return nil, fmt.Errorf("partitionkey: invalid path %q", path)
	}
	parts := strings.Split(path[1:], "/")
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("partitionkey: invalid path %q", path)
		}
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return parts, nil
}
