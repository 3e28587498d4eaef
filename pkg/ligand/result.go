package ligand

import (
	"encoding/json"
)

// Kind tags the shape of a Result.
type Kind int

const (
	// Empty means no ligand was refined; the candidate document stands.
	Empty Kind = iota
	// Single is one ligand, serialized unwrapped.
	Single
	// Multiple is several ligands, serialized under "ligands".
	Multiple
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Multiple:
		return "multiple"
	default:
		return "empty"
	}
}

// Result is the reconciled output of one document. Its JSON shape is decided
// only by the number of records it holds.
type Result struct {
	records  []Record
	fallback any
}

// Reconcile merges per-ligand records in discovery order. fallback is
// returned as the document when there are no records, which the refiner
// only allows when discovery found no ligands at all.
func Reconcile(records []Record, fallback any) Result {
	return Result{records: append([]Record(nil), records...), fallback: fallback}
}

// Kind returns the result's shape.
func (r Result) Kind() Kind {
	switch len(r.records) {
	case 0:
		return Empty
	case 1:
		return Single
	default:
		return Multiple
	}
}

// Records returns the ligand records in discovery order.
func (r Result) Records() []Record {
	return append([]Record(nil), r.records...)
}

// Names returns the ligand names in discovery order.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		names = append(names, rec.Name)
	}
	return names
}

// Value returns the document as a JSON value.
func (r Result) Value() any {
	switch r.Kind() {
	case Single:
		return r.records[0].Value()
	case Multiple:
		list := make([]any, 0, len(r.records))
		for _, rec := range r.records {
			list = append(list, rec.Value())
		}
		return map[string]any{WrapperKey: list}
	default:
		return r.fallback
	}
}

// MarshalJSON encodes the document value.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}
