package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Merlin1A/air-pulse/internal/archive"
	"github.com/Merlin1A/air-pulse/internal/normalizer"
	"github.com/Merlin1A/air-pulse/internal/protocol"
)

type messageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msgs ...kafka.Message) error
}

type readingSink interface {
	SaveReadings(ctx context.Context, records []archive.Record) error
}

// BatchWriter consumes provider payloads, normalizes them and batch-writes
// the readings to the archive
type BatchWriter struct {
	consumer      messageSource
	sink          readingSink
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter creates a new batch writer
func NewBatchWriter(consumer messageSource, sink readingSink, batchSize int, flushInterval time.Duration) *BatchWriter {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchWriter{
		consumer:      consumer,
		sink:          sink,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing to the archive
func (bw *BatchWriter) Start(ctx context.Context) error {
	bw.wg.Add(1)
	go bw.run(ctx)
	return nil
}

// Stop flushes the pending batch and waits for the writer to exit
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	var batch []kafka.Message
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()

	msgChan := make(chan kafka.Message, bw.batchSize)
	go func() {
		for {
			msg, err := bw.consumer.Consume(fetchCtx)
			if err != nil {
				if fetchCtx.Err() != nil {
					return
				}
				fmt.Printf("Consumer error: %v\n", err)
				continue
			}
			select {
			case msgChan <- msg:
			case <-fetchCtx.Done():
				return
			}
		}
	}()

	for {
		in := msgChan
		if len(batch) >= bw.batchSize {
			// Archive is behind; stop reading until the next tick retries
			in = nil
		}

		select {
		case <-bw.stopCh:
			if len(batch) > 0 {
				bw.flush(ctx, batch)
			}
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if len(batch) > 0 {
				fmt.Printf("Flush interval reached (%d messages), flushing...\n", len(batch))
				if _, err := bw.flush(ctx, batch); err == nil {
					batch = nil
				}
			}

		case msg := <-in:
			batch = append(batch, msg)
			if len(batch) >= bw.batchSize {
				fmt.Printf("Batch full (%d messages), flushing...\n", len(batch))
				if _, err := bw.flush(ctx, batch); err == nil {
					batch = nil
				}
			}
		}
	}
}

// flush archives a batch. Malformed payloads are dropped and committed.
// If the archive write fails nothing is committed and the caller keeps the
// batch; rewriting it is safe because readings are upserted.
func (bw *BatchWriter) flush(ctx context.Context, batch []kafka.Message) (int, error) {
	records := make([]archive.Record, 0, len(batch))
	for _, msg := range batch {
		rec, err := buildRecord(msg)
		if err != nil {
			fmt.Printf("Dropping payload (partition=%d, offset=%d): %v\n", msg.Partition, msg.Offset, err)
			continue
		}
		records = append(records, rec)
	}

	if err := bw.sink.SaveReadings(ctx, records); err != nil {
		fmt.Printf("Failed to archive batch of %d readings: %v\n", len(records), err)
		return 0, err
	}

	if err := bw.consumer.Commit(ctx, batch...); err != nil {
		fmt.Printf("Failed to commit offsets: %v\n", err)
		return len(records), err
	}

	fmt.Printf("Archived batch of %d readings\n", len(records))
	return len(records), nil
}

func buildRecord(msg kafka.Message) (archive.Record, error) {
	env, err := protocol.DecodeProviderEnvelope(msg.Value)
	if err != nil {
		return archive.Record{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	result, err := normalizer.NormalizeEnvelope(env)
	if err != nil {
		return archive.Record{}, fmt.Errorf("failed to normalize %s payload: %w", env.Provider, err)
	}
	for _, d := range result.Dropped {
		fmt.Printf("Ignoring field from %s payload for %s: %v\n", env.Provider, env.LocationKey, d)
	}

	return archive.Record{
		Reading:  result.Reading,
		Kind:     env.Kind,
		Provider: env.Provider,
		IssuedAt: env.IssuedAt,
	}, nil
}
