package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/ligandx/pkg/source"
)

// Watch processes every candidate created or rewritten in dir until ctx is
// cancelled. Keys are queued as events arrive and processed one at a time;
// a key already waiting is not queued twice.
func (r *Runner) Watch(ctx context.Context, dir string) (*Report, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}
	if err := r.Begin(ctx); err != nil {
		return nil, err
	}

	report := newReport(r.runID)
	q := newKeyQueue()
	r.logger.Info("watching for candidates", "run_id", r.runID, "dir", dir)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer q.close()
		for {
			select {
			case <-gctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				key := source.KeyOf(filepath.Base(event.Name))
				if q.push(key) {
					r.logger.Debug("candidate queued", "document", key)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				return fmt.Errorf("watcher error: %w", err)
			}
		}
	})

	g.Go(func() error {
		for {
			key, ok := q.pop(gctx)
			if !ok {
				return nil
			}
			status, err := r.RunKey(gctx, key)
			report.add(key, status, err)
		}
	})

	err = g.Wait()
	if ferr := r.Finish(context.WithoutCancel(ctx)); ferr != nil {
		r.logger.Warn("failed to finish run", "run_id", r.runID, "error", ferr)
	}
	return report, err
}

// keyQueue is a FIFO of distinct pending keys.
type keyQueue struct {
	mu      sync.Mutex
	keys    []string
	pending map[string]bool
	ready   chan struct{}
	closed  bool
}

func newKeyQueue() *keyQueue {
	return &keyQueue{pending: map[string]bool{}, ready: make(chan struct{}, 1)}
}

func (q *keyQueue) push(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.pending[key] {
		return false
	}
	q.pending[key] = true
	q.keys = append(q.keys, key)
	q.signal()
	return true
}

func (q *keyQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

func (q *keyQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// pop blocks until a key is available. It returns false once the queue is
// closed and drained, or ctx is done.
func (q *keyQueue) pop(ctx context.Context) (string, bool) {
	for {
		q.mu.Lock()
		if len(q.keys) > 0 {
			key := q.keys[0]
			q.keys = q.keys[1:]
			delete(q.pending, key)
			q.mu.Unlock()
			return key, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return "", false
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-q.ready:
		}
	}
}
