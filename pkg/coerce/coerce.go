// Package coerce turns raw model answers into typed values of a declared
// shape. It never retries and never evaluates model output.
package coerce

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shape is the expected form of an answer.
type Shape string

const (
	List   Shape = "list"
	Dict   Shape = "dict"
	String Shape = "string"
)

// ParseShape validates a shape tag.
func ParseShape(s string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case List:
		return List, nil
	case Dict:
		return Dict, nil
	case String:
		return String, nil
	default:
		return "", fmt.Errorf("unknown answer shape %q", s)
	}
}

// ShapeMismatchError reports an answer that cannot be read as the expected
// shape.
type ShapeMismatchError struct {
	Shape Shape
	Raw   string
	Err   error
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("answer is not a %s: %v", e.Shape, e.Err)
}

func (e *ShapeMismatchError) Unwrap() error {
	return e.Err
}

// Coerce converts raw into a value of the given shape: []any for List, the
// decoded JSON value for Dict, and the trimmed text for String.
func Coerce(shape Shape, raw string) (any, error) {
	switch shape {
	case List:
		return ToList(raw)
	case Dict:
		return ToDict(raw)
	case String:
		return ToString(raw), nil
	default:
		return nil, fmt.Errorf("unknown answer shape %q", shape)
	}
}

// ToList reads raw as a sequence literal. One pair of surrounding double
// quotes is stripped first, as are markdown fences.
func ToList(raw string) ([]any, error) {
	text := StripFences(raw)
	text = stripQuotes(text)

	v, err := ParseLiteral(text)
	if err != nil {
		return nil, &ShapeMismatchError{Shape: List, Raw: raw, Err: err}
	}
	list, ok := v.([]any)
	if !ok {
		return nil, &ShapeMismatchError{Shape: List, Raw: raw, Err: fmt.Errorf("got %T", v)}
	}
	return list, nil
}

// ToDict strips markdown fences and decodes raw as JSON. Any valid JSON
// value is returned; callers that need an object check for
// map[string]any themselves.
func ToDict(raw string) (any, error) {
	text := StripFences(raw)

	dec := json.NewDecoder(strings.NewReader(text))

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ShapeMismatchError{Shape: Dict, Raw: raw, Err: err}
	}
	if dec.More() {
		return nil, &ShapeMismatchError{Shape: Dict, Raw: raw, Err: fmt.Errorf("trailing data after JSON value")}
	}
	return v, nil
}

// ToString returns raw with surrounding whitespace and one trailing period
// removed.
func ToString(raw string) string {
	s := strings.TrimSpace(raw)
	return strings.TrimSuffix(s, ".")
}

// YesNo normalizes a yes/no answer for comparison: periods removed,
// lower-cased, trimmed.
func YesNo(raw string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(raw, ".", "")))
}

// IsNo reports whether a yes/no answer is "no".
func IsNo(raw string) bool {
	return YesNo(raw) == "no"
}

// StripFences removes one leading markdown fence (with an optional language
// tag) and one trailing fence.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		i := 0
		for i < len(rest) && isTagByte(rest[i]) {
			i++
		}
		s = rest[i:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isTagByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_' || b == '-' || b == '+'
}

func stripQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		// only strip when the quotes wrap a literal, not a single string
		trimmed := strings.TrimSpace(inner)
		if strings.HasPrefix(trimmed, "[") {
			return trimmed
		}
	}
	return s
}
