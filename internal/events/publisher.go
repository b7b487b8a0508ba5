// Package events delivers committed ledger events to an EventPublisher.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/sheikh-saqib/service-hours-ledger/internal/interfaces"
	"github.com/sheikh-saqib/service-hours-ledger/internal/logger"
	ledgerevents "github.com/sheikh-saqib/service-hours-ledger/internal/models/events"
)

const publishTimeout = 5 * time.Second

// Committer is the part of the store that defers work until commit.
type Committer interface {
	AfterCommit(ctx context.Context, fn func())
}

// PublishAfterCommit queues evs for publication once the transaction carried
// by ctx commits. Publish failures are logged; the mutation stays committed.
func PublishAfterCommit(ctx context.Context, store Committer, pub interfaces.EventPublisher, log *logger.Logger, evs ...ledgerevents.LedgerEvent) {
	if pub == nil || len(evs) == 0 {
		return
	}
	store.AfterCommit(ctx, func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		for _, ev := range evs {
			if err := pub.Publish(pubCtx, ev); err != nil {
				log.Warn("publish event failed", "event_id", ev.EventID, "type", ev.Type, "error", err)
			}
		}
	})
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, ledgerevents.LedgerEvent) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []ledgerevents.LedgerEvent
}

func (r *Recorder) Publish(_ context.Context, ev ledgerevents.LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []ledgerevents.LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledgerevents.LedgerEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists the recorded event types in order.
func (r *Recorder) Types() []ledgerevents.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledgerevents.Type, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
