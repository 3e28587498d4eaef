package ligand

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// NumericPart returns the leading number of a value, ignoring any unit
// suffix: "12 mg" and "12mg" both yield 12.
func NumericPart(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		return leadingNumber(t)
	default:
		return 0, false
	}
}

// numberPrefix matches a leading decimal number with an optional exponent.
var numberPrefix = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`)

// leadingNumber parses the number at the start of s. A digit right after a
// comma makes the grouping ambiguous ("12,5"), so such values are not numeric.
func leadingNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	tok := numberPrefix.FindString(s)
	if tok == "" {
		return 0, false
	}
	if rest := s[len(tok):]; len(rest) > 1 && rest[0] == ',' && rest[1] >= '0' && rest[1] <= '9' {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func sameNumber(a, b float64) bool {
	return a == b || math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// MissingValues returns the values of extracted that have no match in
// reference, in order. Values with a leading number match on the number
// alone; others match case-insensitively as text. Nested lists are
// flattened.
func MissingValues(extracted, reference []any) []any {
	ref := flatten(reference)
	missing := []any{}
	for _, e := range flatten(extracted) {
		if !containsValue(ref, e) {
			missing = append(missing, e)
		}
	}
	return missing
}

func containsValue(ref []any, v any) bool {
	if n, ok := NumericPart(v); ok {
		for _, r := range ref {
			if m, ok := NumericPart(r); ok && sameNumber(n, m) {
				return true
			}
		}
		return false
	}
	text := normalize(v)
	for _, r := range ref {
		if normalize(r) == text {
			return true
		}
	}
	return false
}

func normalize(v any) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}

func flatten(values []any) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		if nested, ok := v.([]any); ok {
			out = append(out, flatten(nested)...)
			continue
		}
		out = append(out, v)
	}
	return out
}
