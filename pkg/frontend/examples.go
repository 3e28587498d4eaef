package frontend

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/papercomputeco/ligandx/pkg/source"
)

// LoadExamples reads few_shot pairs from dir: every <name>.txt input with a
// sibling <name>.json output, in name order. An empty dir yields no pairs.
func LoadExamples(dir string) ([]Example, error) {
	if dir == "" {
		return nil, nil
	}

	inputs, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	sort.Strings(inputs)

	var examples []Example
	for _, in := range inputs {
		out := strings.TrimSuffix(in, ".txt") + ".json"
		if _, err := os.Stat(out); err != nil {
			return nil, fmt.Errorf("example %s has no output %s", filepath.Base(in), filepath.Base(out))
		}

		input, err := source.ReadText(in)
		if err != nil {
			return nil, err
		}
		output, err := source.ReadText(out)
		if err != nil {
			return nil, err
		}
		examples = append(examples, Example{Input: input, Output: strings.TrimSpace(output)})
	}
	return examples, nil
}
