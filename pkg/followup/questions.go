package followup

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/ligandx/pkg/ligand"
)

// Context names the grounding material placed before a question.
type Context string

const (
	ContextNone           Context = "none"
	ContextRepresentation Context = "representation"
	ContextJSON           Context = "json"
	ContextBoth           Context = "both"
	ContextTitle          Context = "title"
	ContextCaption        Context = "caption"
)

// Question is one question template. Text may reference {ligand_name},
// {element} and {key}.
type Question struct {
	Context Context `yaml:"context"`
	Text    string  `yaml:"text"`
}

// LigandQuestions discover the ligands of a table.
type LigandQuestions struct {
	FromTable     Question `yaml:"from_table"`
	FromCandidate Question `yaml:"from_candidate"`
	Reconcile     Question `yaml:"reconcile"`
}

// PropertyQuestions drive the per-property refinement protocol.
type PropertyQuestions struct {
	Extract       Question `yaml:"extract"`
	UnknownGate   Question `yaml:"unknown_gate"`
	RemoveUnknown Question `yaml:"remove_unknown"`
	TableValues   Question `yaml:"table_values"`
	ValueFields   Question `yaml:"value_fields"`
	Diff          Question `yaml:"diff"`
	RemoveMissing Question `yaml:"remove_missing"`
	Final         Question `yaml:"final"`

	// Synthetic turns stand in for questions the protocol answers itself.
	SkippedCleanup     string `yaml:"skipped_cleanup"`
	UnchangedFromFirst string `yaml:"unchanged_from_first"`
	UnchangedFromClean string `yaml:"unchanged_from_clean"`

	// StructuralReminder is appended to the final question when it is
	// re-asked after a non-object answer.
	StructuralReminder string `yaml:"structural_reminder"`
}

// ElementCheck decides whether Key is spurious for a table: when both the
// title and caption questions answer "no", Key is removed.
type ElementCheck struct {
	Key     string   `yaml:"key"`
	Title   Question `yaml:"title"`
	Caption Question `yaml:"caption"`
}

// Questions is the full question table of the refinement protocol.
type Questions struct {
	System      string            `yaml:"system"`
	Ligand      LigandQuestions   `yaml:"ligand"`
	Performance Question          `yaml:"performance"`
	Property    PropertyQuestions `yaml:"property"`
	Elements    []ElementCheck    `yaml:"elements"`
	RemoveKey   Question          `yaml:"remove_key"`
}

// DefaultQuestions returns the built-in question table.
func DefaultQuestions() *Questions {
	return &Questions{
		System: systemPrompt(),
		Ligand: LigandQuestions{
			FromTable:     Question{ContextRepresentation, "Question 1. Please tell me the names of ligands in the contents within the <table> tags of input representation into a Python list. Give me the names of ligands ONLY. Only output the Python list(like string).\n\n"},
			FromCandidate: Question{ContextJSON, "Question 2. Please tell me the names of ligands from the input json provided by me into a Python list. Only output the Python list(like string).\n\n"},
			Reconcile:     Question{ContextNone, "Question 3. Based on the answer to Question 1, modify or remove any ligands from the answer to Question 2 and provide the updated list in Python. Give me the names of ligands ONLY. Only output the Python list.(like string)\n\n"},
		},
		Performance: Question{ContextJSON, "Question 1. Inform me about what property type does {ligand_name} have in the input json I provided? Only output the Python list.(like string)\n\n"},
		Property: PropertyQuestions{
			Extract:       Question{ContextJSON, "Question 1. Provide detailed information about all sublayers of the {element} of {ligand_name} in input json. Remove keys from the dictionary that do not have a value. Present it in either Python list or JSON format. If the {element} is not 'loading', strictly provide it in Python list or JSON format.(like string not ```python and not ```json)\n\n"},
			UnknownGate:   Question{ContextNone, "Question 2. If there is any occurrence of 'NA', 'na', 'unknown', or similar content in your recent response, Respond with yes or no. You must answer strictly with yes or no.\n\n"},
			RemoveUnknown: Question{ContextNone, "Question 3. In the answer to question 1, remove any parts corresponding to 'NA', 'na', 'unknown', or similar contents. Show the modified JSON. Only display the JSON. (like string not ```json)\n\n"},
			TableValues:   Question{ContextRepresentation, "Question 4. Based on the input representation, provide values of the {element} of the {ligand_name} as a Python list. If there is a unit, please provide strictly the value including the unit. The elements of a Python list must be composed of value plus unit. Only output the Python list.(like string not ```python)\n\n"},
			ValueFields:   Question{ContextNone, "Question 5. Based on the answer to question 3, provide values of the '''value''' key of the sublayers of the {element} as a Python list. Only output the Python list.(like string not ```python)\n\n"},
			Diff:          Question{ContextNone, "Question 6. Based on only numerical values, provide a list of elements that exist in the answer to Question 5 but are not present in the the answer to Question 4. Note that unit differences can be ignored if the numbers match. Only output the Python list.(like string not ```python)\n\n"},
			RemoveMissing: Question{ContextJSON, "Question 7. If elements included in the list that is the answer to question 6 are in the answer to question 1, remove the sub-dictionary containing those elements from the json I provided. If the answer to 6 is a list containing elements, be sure to delete it from json. Show the modified JSON after removal. Only display the JSON. (like string not ```json)\n\n"},
			Final:         Question{ContextJSON, "Question 8. Please tell me the final modified json of {ligand_name} by reflecting the answer to question 7 in the json I provided. Only output the JSON of {ligand_name}. the ligand_name is {ligand_name}. The first key of the dictionary should be {ligand_name}. Remove keys from the dictionary that do not have a value. (like string not ```json)"},

			SkippedCleanup:     "Question 3. Based on the answer to question 2, remove any parts corresponding to 'NA', 'na', 'unknown', or similar content from the answer to question 1. Show the modified JSON. Only display the JSON. (like string not ```json)",
			UnchangedFromFirst: "Question 7. If the answer to question 6 is an empty list, just provide the answer to question 1 as it is.",
			UnchangedFromClean: "Question 7. If the answer to question 6 is an empty list, just provide the answer to question 3 as it is.",
			StructuralReminder: "\n\nThe answer must be a single JSON object. Only display the JSON.",
		},
		Elements: []ElementCheck{
			{
				Key:     "reaction_type",
				Title:   Question{ContextTitle, "Question 1. Does the title of the input representation mention any ligands? Please answer with either yes or no.\n\n"},
				Caption: Question{ContextCaption, "Question 2. Does the table caption of the input representation mention any ligands? Please answer with either yes or no.\n\n"},
			},
			{
				Key:     "substrate",
				Title:   Question{ContextTitle, "Question 3. Does the title provide information about ligand properties? Please answer with either yes or no\n\n"},
				Caption: Question{ContextCaption, "Question 4. Does the table caption provide information about ligand properties? Please answer with either yes or no\n\n"},
			},
			{
				Key:     "electrolyte",
				Title:   Question{ContextTitle, "Question 5. Does the title include ligand-related experimental conditions? Please answer with either yes or no\n\n"},
				Caption: Question{ContextCaption, "Question 6. Does the table caption include ligand-related experimental conditions? Please answer with either yes or no\n\n"},
			},
		},
		RemoveKey: Question{ContextJSON, "Remove all elements with the key name {key} from the input JSON and display it in only JSON format. Other explanation is not allowed. Show me only JSON result. Only display the JSON. (like string not ```json)"},
	}
}

func systemPrompt() string {
	fields := make([]string, 0, len(ligand.PropertyTemplate))
	for _, k := range ligand.PropertyTemplate {
		fields = append(fields, fmt.Sprintf("'%s': ''", k))
	}
	return "You need to modify the JSON representing the table presenter.\n\n" +
		" JSON template : {'ligand_name' : {PROPERTY_TEMPLATE}}\n" +
		" PROPERTY_TEMPLATE : {" + strings.Join(fields, ", ") + "}\n" +
		" In the JSON template, 'ligand_name' should be replaced with the actual names present in the input representation."
}

// LoadQuestions reads a YAML question table from path over the defaults.
// Fields absent from the file keep their default text. An empty path
// returns the defaults.
func LoadQuestions(path string) (*Questions, error) {
	q := DefaultQuestions()
	if path == "" {
		return q, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question table: %w", err)
	}
	if err := yaml.Unmarshal(data, q); err != nil {
		return nil, fmt.Errorf("parsing question table %s: %w", path, err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("question table %s: %w", path, err)
	}
	return q, nil
}

type namedQuestion struct {
	name string
	q    Question
}

// Validate checks that every question has text and a known context.
func (q *Questions) Validate() error {
	named := []namedQuestion{
		{"ligand.from_table", q.Ligand.FromTable},
		{"ligand.from_candidate", q.Ligand.FromCandidate},
		{"ligand.reconcile", q.Ligand.Reconcile},
		{"performance", q.Performance},
		{"property.extract", q.Property.Extract},
		{"property.unknown_gate", q.Property.UnknownGate},
		{"property.remove_unknown", q.Property.RemoveUnknown},
		{"property.table_values", q.Property.TableValues},
		{"property.value_fields", q.Property.ValueFields},
		{"property.diff", q.Property.Diff},
		{"property.remove_missing", q.Property.RemoveMissing},
		{"property.final", q.Property.Final},
		{"remove_key", q.RemoveKey},
	}
	for _, e := range q.Elements {
		if e.Key == "" {
			return fmt.Errorf("element check without key")
		}
		named = append(named,
			namedQuestion{"elements." + e.Key + ".title", e.Title},
			namedQuestion{"elements." + e.Key + ".caption", e.Caption},
		)
	}

	for _, n := range named {
		if strings.TrimSpace(n.q.Text) == "" {
			return fmt.Errorf("%s: empty question text", n.name)
		}
		switch n.q.Context {
		case ContextNone, ContextRepresentation, ContextJSON, ContextBoth, ContextTitle, ContextCaption:
		case "":
			return fmt.Errorf("%s: missing context", n.name)
		default:
			return fmt.Errorf("%s: unknown context %q", n.name, n.q.Context)
		}
	}
	return nil
}

// format fills the placeholders of a question template. Ligand names and
// elements are wrapped in triple double quotes, keys in triple single
// quotes.
func format(text, ligandName, element, key string) string {
	return strings.NewReplacer(
		"{ligand_name}", `"""`+ligandName+`"""`,
		"{element}", `"""`+element+`"""`,
		"{key}", "'''"+key+"'''",
	).Replace(text)
}
