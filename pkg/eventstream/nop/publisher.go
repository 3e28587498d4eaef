// Package nop discards document events. It backs runs with no broker
// configured, keeping the same closed-publisher contract as the Kafka
// publisher so the pipeline sees one behavior either way.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/ligandx/pkg/eventstream"
)

// Publisher drops every refined-document event it is handed.
type Publisher struct {
	discarded atomic.Int64
	closed    atomic.Bool
}

// NewPublisher returns a Publisher ready to discard events.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishDocument rejects nil events and events sent after Close. Anything
// else is counted and dropped.
func (p *Publisher) PublishDocument(_ context.Context, event *eventstream.DocumentRefinedEvent) error {
	if event == nil {
		return eventstream.ErrNilDocumentEvent
	}
	if p.closed.Load() {
		return eventstream.ErrPublisherClosed
	}
	p.discarded.Add(1)
	return nil
}

// Discarded reports how many document events were dropped.
func (p *Publisher) Discarded() int64 {
	return p.discarded.Load()
}

func (p *Publisher) Close() error {
	p.closed.Store(true)
	return nil
}
