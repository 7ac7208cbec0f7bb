package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Merlin1A/air-pulse/internal/protocol"
	"github.com/Merlin1A/air-pulse/pkg/config"
)

// Source is the alert topic the worker drains
type Source interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

// Sender delivers a single alert
type Sender interface {
	SendAlert(alert *protocol.AlertMessage) error
}

// WorkerStats counts what happened to consumed alerts
type WorkerStats struct {
	Sent      int
	Retried   int
	Dropped   int
	Malformed int
}

// Worker sends every alert on the topic, retrying failed deliveries a
// bounded number of times before giving up and moving past the offset
type Worker struct {
	source      Source
	sender      Sender
	maxAttempts int
	backoff     time.Duration

	mu    sync.Mutex
	stats WorkerStats
}

// NewWorker creates a worker over source
func NewWorker(source Source, sender Sender, cfg config.NotifierConfig) *Worker {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Worker{
		source:      source,
		sender:      sender,
		maxAttempts: attempts,
		backoff:     cfg.RetryBackoff,
	}
}

// Run consumes until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, err := w.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Failed to consume alert: %v", err)
			continue
		}

		if err := w.Handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("%v", err)
		}
	}
}

// Handle delivers one message and commits it. The offset is committed even
// when delivery is abandoned so a bad mail server cannot stall the partition.
func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	alert, err := protocol.DecodeAlertMessage(msg.Value)
	if err != nil {
		log.Printf("Dropping malformed alert at offset %d: %v", msg.Offset, err)
		w.count(func(s *WorkerStats) { s.Malformed++ })
		return w.commit(ctx, msg)
	}

	if err := w.deliver(ctx, alert); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("Giving up on alert %s for user %s (%s at %s): %v",
			alert.AlertID, alert.UserID, alert.Pollutant, alert.LocationKey, err)
		w.count(func(s *WorkerStats) { s.Dropped++ })
		return w.commit(ctx, msg)
	}

	log.Printf("Alert %s sent to user %s: %s at %s is %.2fx threshold",
		alert.AlertID, alert.UserID, alert.Pollutant, alert.LocationKey, alert.Severity)
	w.count(func(s *WorkerStats) { s.Sent++ })
	return w.commit(ctx, msg)
}

func (w *Worker) deliver(ctx context.Context, alert *protocol.AlertMessage) error {
	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err = w.sender.SendAlert(alert); err == nil {
			return nil
		}
		if attempt == w.maxAttempts {
			break
		}

		log.Printf("Alert %s attempt %d/%d failed: %v", alert.AlertID, attempt, w.maxAttempts, err)
		w.count(func(s *WorkerStats) { s.Retried++ })
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * w.backoff):
		}
	}
	return err
}

func (w *Worker) commit(ctx context.Context, msg kafka.Message) error {
	if err := w.source.Commit(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit alert offset %d: %w", msg.Offset, err)
	}
	return nil
}

func (w *Worker) count(update func(*WorkerStats)) {
	w.mu.Lock()
	update(&w.stats)
	w.mu.Unlock()
}

// Stats returns a snapshot of the counters
func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
