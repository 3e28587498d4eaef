package followup

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/ligandx/pkg/audit"
	"github.com/papercomputeco/ligandx/pkg/ligand"
)

// Stage is a step of the refinement protocol.
type Stage int

const (
	StageLigandDiscovery Stage = iota
	StagePerformanceDiscovery
	StagePropertyExtraction
	StageReconciliation
	StageElementPruning
	StagePersisted
)

func (s Stage) String() string {
	switch s {
	case StageLigandDiscovery:
		return "ligand_discovery"
	case StagePerformanceDiscovery:
		return "performance_type_discovery"
	case StagePropertyExtraction:
		return "property_value_extraction"
	case StageReconciliation:
		return "reconciliation"
	case StageElementPruning:
		return "element_pruning"
	case StagePersisted:
		return "persisted"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Outcome is everything produced for one document.
type Outcome struct {
	Key string

	// Ligands are the discovered ligand names in discovery order.
	Ligands []string

	// Result holds the ligands that were refined.
	Result ligand.Result

	// Document is the final JSON after element pruning.
	Document any

	// Removed lists the keys element pruning removed.
	Removed []string

	Log *audit.Log

	// Failures lists ligands dropped because an answer never took the
	// expected shape.
	Failures []Failure

	// Fallbacks lists properties whose final answer was never a JSON
	// object; their previous JSON was kept.
	Fallbacks []*StructuralAmbiguityError
}

// Failed reports whether any ligand was dropped.
func (o *Outcome) Failed() bool {
	return len(o.Failures) > 0
}

// Failure records why a ligand was dropped.
type Failure struct {
	Ligand   string
	Property string
	Stage    Stage
	Err      error
}

func (f Failure) Error() string {
	if f.Property != "" {
		return fmt.Sprintf("%s: ligand %q property %q: %v", f.Stage, f.Ligand, f.Property, f.Err)
	}
	return fmt.Sprintf("%s: ligand %q: %v", f.Stage, f.Ligand, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// ErrNoLigandRefined is returned when ligands were discovered but every one
// of them was dropped. No document is written for it.
var ErrNoLigandRefined = errors.New("no discovered ligand could be refined")

// StructuralAmbiguityError reports a final property answer that was valid
// JSON but never a JSON object.
type StructuralAmbiguityError struct {
	Ligand   string
	Property string
	Attempts int
	Last     any
}

func (e *StructuralAmbiguityError) Error() string {
	return fmt.Sprintf("ligand %q property %q: no JSON object after %d attempts (last answer %T)", e.Ligand, e.Property, e.Attempts, e.Last)
}
