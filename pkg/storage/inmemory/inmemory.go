package inmemory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/ligandx/pkg/merkle"
	"github.com/papercomputeco/ligandx/pkg/storage"
)

// Driver implements storage.Driver using in-memory maps.
type Driver struct {
	// mu is a read write sync mutex guarding every map below
	mu sync.RWMutex

	// nodes is the in memory map of nodes where the key is the content-addressed
	// hash for the node
	nodes map[string]*merkle.Node

	runs map[string]storage.Run

	// docs maps run id to document key to document
	docs map[string]map[string]storage.Document
}

// NewDriver creates a new in-memory store.
func NewDriver() *Driver {
	return &Driver{
		nodes: make(map[string]*merkle.Node),
		runs:  make(map[string]storage.Run),
		docs:  make(map[string]map[string]storage.Document),
	}
}

// Put stores a node. Returns true if the node was newly inserted,
// false if it already existed (no-op due to content-addressing).
func (s *Driver) Put(_ context.Context, node *merkle.Node) (bool, error) {
	if node == nil {
		return false, errors.New("cannot store nil node")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[node.Hash]; ok {
		return false, nil
	}

	s.nodes[node.Hash] = node
	return true, nil
}

// Get retrieves a node by its hash.
func (s *Driver) Get(_ context.Context, hash string) (*merkle.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[hash]
	if !ok {
		return nil, storage.NotFoundError{Kind: "node", ID: hash}
	}

	return node, nil
}

// Ancestry returns the path from a node back to its root (node first, root last).
func (s *Driver) Ancestry(ctx context.Context, hash string) ([]*merkle.Node, error) {
	var path []*merkle.Node
	current := hash

	for {
		node, err := s.Get(ctx, current)
		if err != nil {
			return nil, err
		}
		path = append(path, node)

		if node.ParentHash == nil {
			return path, nil
		}
		current = *node.ParentHash
	}
}

func (s *Driver) CreateRun(_ context.Context, run storage.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return errors.New("run already exists: " + run.ID)
	}
	run.Documents = 0
	s.runs[run.ID] = run
	return nil
}

func (s *Driver) FinishRun(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return storage.NotFoundError{Kind: "run", ID: id}
	}
	run.FinishedAt = &at
	s.runs[id] = run
	return nil
}

func (s *Driver) GetRun(_ context.Context, id string) (*storage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, storage.NotFoundError{Kind: "run", ID: id}
	}
	run.Documents = len(s.docs[id])
	return &run, nil
}

func (s *Driver) ListRuns(_ context.Context) ([]storage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]storage.Run, 0, len(s.runs))
	for id, run := range s.runs {
		run.Documents = len(s.docs[id])
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

func (s *Driver) RecordDocument(_ context.Context, doc storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.Ligands = slices.Clone(doc.Ligands)

	byKey, ok := s.docs[doc.RunID]
	if !ok {
		byKey = make(map[string]storage.Document)
		s.docs[doc.RunID] = byKey
	}
	byKey[doc.Key] = doc
	return nil
}

func (s *Driver) ListDocuments(_ context.Context, runID string) ([]storage.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]storage.Document, 0, len(s.docs[runID]))
	for _, doc := range s.docs[runID] {
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b storage.Document) int {
		return strings.Compare(a.Key, b.Key)
	})
	return docs, nil
}

// Count returns the number of nodes in the in-memory store.
func (s *Driver) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Close is a no-op for the in-memory store.
func (s *Driver) Close() error {
	return nil
}

var _ storage.Driver = (*Driver)(nil)
