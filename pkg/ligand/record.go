// Package ligand models refined ligand records and the document-level
// extraction result built from them.
package ligand

import (
	"encoding/json"
	"strings"
)

// WrapperKey holds the ligand list of a multi-ligand document.
const WrapperKey = "ligands"

// PropertyTemplate lists the recognized property keys of a ligand record.
var PropertyTemplate = []string{
	"chemical_formula",
	"specific_area",
	"pzc",
	"water_contact_angle",
	"initial_uranium_concentration",
	"adsorbent_amount",
	"solution_volume",
	"adsorbent_solution_ratio",
	"adsorption_amount",
	"adsorption_time",
}

// Record is one ligand with its properties.
type Record struct {
	Name       string
	Properties any
}

// MarshalJSON encodes r as {"<name>": <properties>}.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

// Value returns r in its JSON object form.
func (r Record) Value() map[string]any {
	props := r.Properties
	if props == nil {
		props = map[string]any{}
	}
	return map[string]any{r.Name: props}
}

// RecordFromFragment reads the record for name out of a model answer. The
// fragment may be keyed by the ligand name, be a "ligands" wrapper holding
// such objects, or hold the properties directly. Empty values are pruned.
func RecordFromFragment(fragment any, name string) Record {
	if props, ok := lookup(fragment, name); ok {
		return Record{Name: name, Properties: Prune(props)}
	}

	if obj, ok := fragment.(map[string]any); ok && len(obj) == 1 {
		for k, v := range obj {
			if _, isObj := v.(map[string]any); isObj && k != WrapperKey {
				return Record{Name: name, Properties: Prune(v)}
			}
		}
	}

	return Record{Name: name, Properties: Prune(fragment)}
}

func lookup(fragment any, name string) (any, bool) {
	obj, ok := fragment.(map[string]any)
	if !ok {
		return nil, false
	}
	if v, ok := obj[name]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(strings.TrimSpace(k), strings.TrimSpace(name)) {
			return v, true
		}
	}
	if list, ok := obj[WrapperKey].([]any); ok {
		for _, item := range list {
			if v, ok := lookup(item, name); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Prune returns a copy of v without empty values: empty strings, nulls and
// objects or lists left empty after pruning.
func Prune(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			child = Prune(child)
			if isEmpty(child) {
				continue
			}
			out[k] = child
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			child = Prune(child)
			if isEmpty(child) {
				continue
			}
			out = append(out, child)
		}
		return out
	default:
		return v
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// HasKey reports whether key appears at any depth of v.
func HasKey(v any, key string) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if k == key || HasKey(child, key) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if HasKey(child, key) {
				return true
			}
		}
	}
	return false
}
