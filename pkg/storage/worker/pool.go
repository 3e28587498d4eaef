// Package worker provides an asynchronous worker pool for persisting refined
// documents: the turn chains of every exchange and the document's ledger row.
//
// The pool decouples storage from the refinement loop so a slow database
// never holds up the next model call.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/ligandx/pkg/logger"
	"github.com/papercomputeco/ligandx/pkg/merkle"
	"github.com/papercomputeco/ligandx/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Document is the ledger row to record once the chains are stored.
	Document storage.Document

	// Chains holds one node chain per exchange of the document.
	Chains [][]*merkle.Node
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting nodes and documents.
	Driver storage.Driver

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, fmt.Errorf("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"run_id", job.Document.RunID,
			"key", job.Document.Key,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"run_id", job.Document.RunID,
			"key", job.Document.Key,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	added, err := p.storeChains(ctx, job.Chains)
	if err != nil {
		p.logger.Error("turn storage failed",
			"key", job.Document.Key,
			"error", err,
		)
		return
	}

	if err := p.config.Driver.RecordDocument(ctx, job.Document); err != nil {
		p.logger.Error("document record failed",
			"key", job.Document.Key,
			"error", err,
		)
		return
	}

	p.logger.Info("document stored",
		"key", job.Document.Key,
		"status", job.Document.Status,
		"head", job.Document.HeadHash,
		"new_nodes", added,
	)
}

// storeChains stores every chain and returns how many nodes were new. Chains
// of the same document share their prefixes, so most puts are no-ops.
func (p *Pool) storeChains(ctx context.Context, chains [][]*merkle.Node) (int, error) {
	total := 0
	for _, chain := range chains {
		added, err := storage.PutChain(ctx, p.config.Driver, chain)
		if err != nil {
			return total, fmt.Errorf("storing turn chain: %w", err)
		}
		total += added
	}
	return total, nil
}
