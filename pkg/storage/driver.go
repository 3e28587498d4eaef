// Package storage persists refinement runs: the content-addressed turn
// nodes of every exchange and a ledger of runs and document outcomes.
package storage

import (
	"context"
	"time"

	"github.com/papercomputeco/ligandx/pkg/merkle"
)

// Document statuses.
const (
	// StatusRefined means every ligand was refined.
	StatusRefined = "refined"
	// StatusPartial means some ligands were dropped but a document was written.
	StatusPartial = "partial"
	// StatusFailed means no document was written.
	StatusFailed = "failed"
)

// Run is one batch invocation.
type Run struct {
	ID         string     `json:"id"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Documents  int        `json:"documents"`
}

// Document is the recorded outcome of one document in a run.
type Document struct {
	RunID     string    `json:"run_id"`
	Key       string    `json:"key"`
	Status    string    `json:"status"`
	Ligands   []string  `json:"ligands"`
	HeadHash  string    `json:"head_hash,omitempty"`
	Failures  int       `json:"failures"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Driver defines the interface for persisting and retrieving runs and turn
// nodes.
type Driver interface {
	// Put stores a node. Returns true if the node was newly inserted,
	// false if it already exists.
	Put(ctx context.Context, node *merkle.Node) (bool, error)

	// Get retrieves a node by its hash.
	Get(ctx context.Context, hash string) (*merkle.Node, error)

	// Ancestry returns the path from a node back to its root (node first, root last).
	Ancestry(ctx context.Context, hash string) ([]*merkle.Node, error)

	// CreateRun records the start of a run.
	CreateRun(ctx context.Context, run Run) error

	// FinishRun stamps a run's finish time.
	FinishRun(ctx context.Context, id string, at time.Time) error

	// GetRun returns one run.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]Run, error)

	// RecordDocument stores or replaces a document outcome.
	RecordDocument(ctx context.Context, doc Document) error

	// ListDocuments returns the documents of a run in key order.
	ListDocuments(ctx context.Context, runID string) ([]Document, error)

	// Close closes the store and releases any resources.
	Close() error
}

// PutChain stores the nodes of one exchange and returns how many were new.
func PutChain(ctx context.Context, d Driver, nodes []*merkle.Node) (int, error) {
	added := 0
	for _, n := range nodes {
		isNew, err := d.Put(ctx, n)
		if err != nil {
			return added, err
		}
		if isNew {
			added++
		}
	}
	return added, nil
}
