package service

import (
	"context"
	"log"
	"time"

	"github.com/KevinRabun/TruePulse-sub001/internal/model"
)

// OutcomeWorker applies reputation outcomes off the request path. Admission
// enqueues CleanVote after a successful insert; moderation tooling enqueues
// ConfirmedFraud. The queue is bounded: under pressure an outcome is dropped
// and logged rather than stalling vote admissions.
type OutcomeWorker struct {
	ledger *ReputationService
	queue  chan outcomeEvent
}

type outcomeEvent struct {
	identityHash string
	outcome      model.Outcome
}

func NewOutcomeWorker(ledger *ReputationService, queueSize int) *OutcomeWorker {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &OutcomeWorker{
		ledger: ledger,
		queue:  make(chan outcomeEvent, queueSize),
	}
}

// Enqueue submits an outcome without blocking the caller.
func (w *OutcomeWorker) Enqueue(identityHash string, outcome model.Outcome) {
	select {
	case w.queue <- outcomeEvent{identityHash: identityHash, outcome: outcome}:
	default:
		log.Printf("outcome-worker: queue full, dropping %s", outcome)
	}
}

// Start processes the queue until ctx is cancelled, then drains what is
// already enqueued before returning.
func (w *OutcomeWorker) Start(ctx context.Context) {
	log.Printf("outcome-worker: starting (queue=%d)", cap(w.queue))

	for {
		select {
		case ev := <-w.queue:
			w.apply(ev)
		case <-ctx.Done():
			w.drain()
			log.Println("outcome-worker: stopping (context cancelled)")
			return
		}
	}
}

func (w *OutcomeWorker) drain() {
	for {
		select {
		case ev := <-w.queue:
			w.apply(ev)
		default:
			return
		}
	}
}

func (w *OutcomeWorker) apply(ev outcomeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.ledger.ApplyOutcome(ctx, ev.identityHash, ev.outcome); err != nil {
		log.Printf("outcome-worker: apply %s error: %v", ev.outcome, err)
	}
}
