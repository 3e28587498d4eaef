// Package pipeline runs refinement over a batch of documents: each document
// is loaded, refined, written to the sinks, persisted to the run store and
// announced on the event stream. Documents are processed one at a time so
// only one model request is ever outstanding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/ligandx/pkg/eventstream"
	"github.com/papercomputeco/ligandx/pkg/eventstream/nop"
	"github.com/papercomputeco/ligandx/pkg/followup"
	"github.com/papercomputeco/ligandx/pkg/logger"
	"github.com/papercomputeco/ligandx/pkg/merkle"
	"github.com/papercomputeco/ligandx/pkg/sink"
	"github.com/papercomputeco/ligandx/pkg/storage"
	"github.com/papercomputeco/ligandx/pkg/storage/worker"
)

// Source lists and loads documents.
type Source interface {
	Keys() ([]string, error)
	Load(key string) (followup.Document, error)
}

// Refiner refines one document.
type Refiner interface {
	Run(ctx context.Context, doc followup.Document) (*followup.Outcome, error)
}

// DocumentObserver counts finished documents by status.
type DocumentObserver interface {
	ObserveDocument(status string)
}

// Config configures a Runner.
type Config struct {
	Source  Source
	Refiner Refiner
	Sink    sink.Sink

	// Driver records the run. Nil disables the run store.
	Driver storage.Driver

	// Pool persists turn chains and document rows. Requires Driver.
	Pool *worker.Pool

	// Publisher receives one event per document. Defaults to nop.
	Publisher eventstream.Publisher

	Observer DocumentObserver

	// Provider and Model label the run.
	Provider string
	Model    string

	Logger *slog.Logger
}

// Report summarizes a batch.
type Report struct {
	RunID string

	// Processed lists the keys in the order they finished.
	Processed []string

	// Statuses maps each processed key to its storage status.
	Statuses map[string]string

	// Errors holds the failure of every key that did not fully refine.
	Errors map[string]error
}

func newReport(runID string) *Report {
	return &Report{
		RunID:    runID,
		Statuses: map[string]string{},
		Errors:   map[string]error{},
	}
}

func (r *Report) add(key, status string, err error) {
	r.Processed = append(r.Processed, key)
	r.Statuses[key] = status
	if err != nil {
		r.Errors[key] = err
	}
}

// Runner drives a run.
type Runner struct {
	config    *Config
	publisher eventstream.Publisher
	logger    *slog.Logger
	runID     string
	now       func() time.Time
}

// New validates c and assigns a run id.
func New(c *Config) (*Runner, error) {
	if c.Source == nil || c.Refiner == nil || c.Sink == nil {
		return nil, errors.New("pipeline: source, refiner and sink are required")
	}
	if c.Pool != nil && c.Driver == nil {
		return nil, errors.New("pipeline: a storage pool requires a driver")
	}

	pub := c.Publisher
	if pub == nil {
		pub = nop.NewPublisher()
	}
	return &Runner{
		config:    c,
		publisher: pub,
		logger:    logger.OrNop(c.Logger),
		runID:     uuid.NewString(),
		now:       time.Now,
	}, nil
}

// RunID returns the id stamped on everything the runner records.
func (r *Runner) RunID() string {
	return r.runID
}

// Begin records the run in the store.
func (r *Runner) Begin(ctx context.Context) error {
	if r.config.Driver == nil {
		return nil
	}
	return r.config.Driver.CreateRun(ctx, storage.Run{
		ID:        r.runID,
		Provider:  r.config.Provider,
		Model:     r.config.Model,
		StartedAt: r.now().UTC(),
	})
}

// Finish stamps the run's finish time.
func (r *Runner) Finish(ctx context.Context) error {
	if r.config.Driver == nil {
		return nil
	}
	return r.config.Driver.FinishRun(ctx, r.runID, r.now().UTC())
}

// Run processes every key of the source. Per-document failures are
// collected in the report and the batch continues; only cancellation stops
// it early.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	keys, err := r.config.Source.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if err := r.Begin(ctx); err != nil {
		return nil, err
	}

	report := newReport(r.runID)
	r.logger.Info("run started", "run_id", r.runID, "documents", len(keys))

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		status, err := r.RunKey(ctx, key)
		report.add(key, status, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
	}

	if err := r.Finish(context.WithoutCancel(ctx)); err != nil {
		r.logger.Warn("failed to finish run", "run_id", r.runID, "error", err)
	}
	r.logger.Info("run finished",
		"run_id", r.runID,
		"documents", len(report.Processed),
		"errors", len(report.Errors),
	)
	return report, nil
}

// RunKey processes one document and returns its status. A partial
// document returns the joined ligand failures; a failed one returns the
// error that stopped it.
func (r *Runner) RunKey(ctx context.Context, key string) (string, error) {
	doc, err := r.config.Source.Load(key)
	if err != nil {
		return r.fail(ctx, key, fmt.Errorf("loading %s: %w", key, err))
	}

	out, err := r.config.Refiner.Run(ctx, doc)
	if err != nil {
		return r.fail(ctx, key, err)
	}

	artifacts, err := sink.Render(out)
	if err != nil {
		return r.fail(ctx, key, err)
	}
	if err := r.config.Sink.Write(ctx, artifacts); err != nil {
		return r.fail(ctx, key, fmt.Errorf("writing outputs: %w", err))
	}

	status := storage.StatusRefined
	var docErr error
	if out.Failed() {
		status = storage.StatusPartial
		errs := make([]error, 0, len(out.Failures))
		for _, f := range out.Failures {
			errs = append(errs, f)
		}
		docErr = errors.Join(errs...)
	}

	chains := Chains(out, r.config.Model)
	head := ""
	if len(chains) > 0 {
		head = merkle.Head(chains[len(chains)-1]).Hash
	}

	rec := storage.Document{
		RunID:    r.runID,
		Key:      key,
		Status:   status,
		Ligands:  out.Result.Names(),
		HeadHash: head,
		Failures: len(out.Failures),
	}
	if docErr != nil {
		rec.Error = docErr.Error()
	}
	r.finish(ctx, rec, chains)

	r.logger.Info("document refined",
		"document", key,
		"status", status,
		"ligands", len(rec.Ligands),
		"removed", len(out.Removed),
	)
	return status, docErr
}

func (r *Runner) fail(ctx context.Context, key string, err error) (string, error) {
	r.logger.Error("document failed", "document", key, "error", err)
	r.finish(ctx, storage.Document{
		RunID:  r.runID,
		Key:    key,
		Status: storage.StatusFailed,
		Error:  err.Error(),
	}, nil)
	return storage.StatusFailed, err
}

// finish persists, announces and counts a document.
func (r *Runner) finish(ctx context.Context, doc storage.Document, chains [][]*merkle.Node) {
	doc.CreatedAt = r.now().UTC()

	if r.config.Pool != nil {
		r.config.Pool.Enqueue(worker.Job{Document: doc, Chains: chains})
	}

	evt := eventstream.NewDocumentRefinedEvent(
		eventstream.EventSource{RunID: r.runID, Provider: r.config.Provider, Model: r.config.Model},
		eventstream.DocumentRef{
			Key:      doc.Key,
			Status:   doc.Status,
			Ligands:  doc.Ligands,
			Failures: doc.Failures,
			HeadHash: doc.HeadHash,
		},
	)
	if err := r.publisher.PublishDocument(context.WithoutCancel(ctx), evt); err != nil {
		r.logger.Warn("failed to publish document event", "document", doc.Key, "error", err)
	}

	if r.config.Observer != nil {
		r.config.Observer.ObserveDocument(doc.Status)
	}
}

// Chains turns every recorded exchange of an outcome into a node chain.
func Chains(out *followup.Outcome, model string) [][]*merkle.Node {
	if out.Log == nil {
		return nil
	}
	exchanges := out.Log.Exchanges()
	chains := make([][]*merkle.Node, 0, len(exchanges))
	for _, ex := range exchanges {
		chains = append(chains, merkle.Chain(ex.History, ex.Answer, model))
	}
	return chains
}
