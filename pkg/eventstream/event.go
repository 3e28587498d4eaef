// Package eventstream publishes an event for every document a run finishes,
// so downstream consumers can pick up refined tables without polling the
// output directory.
package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ligandx/pkg/utils"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentRefined is emitted after a document's outcome is recorded.
	EventTypeDocumentRefined = "ligandx.document.refined"
)

// DocumentRefinedEvent is a transport-neutral event payload for a finished document.
type DocumentRefinedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Document      DocumentRef `json:"document"`
}

// EventSource identifies the run the document belongs to.
type EventSource struct {
	RunID    string `json:"run_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Build    string `json:"build,omitempty"`
}

// DocumentRef summarizes the document outcome.
type DocumentRef struct {
	Key      string   `json:"key"`
	Status   string   `json:"status"`
	Ligands  []string `json:"ligands"`
	Failures int      `json:"failures"`
	HeadHash string   `json:"head_hash,omitempty"`
}

// NewDocumentRefinedEvent stamps a fresh event id and emission time, and the
// running build when source carries none.
func NewDocumentRefinedEvent(source EventSource, doc DocumentRef) *DocumentRefinedEvent {
	if source.Build == "" {
		source.Build = utils.BuildString()
	}
	if doc.Ligands == nil {
		doc.Ligands = []string{}
	}
	return &DocumentRefinedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDocumentRefined,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Document:      doc,
	}
}
