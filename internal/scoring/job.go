package scoring

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/Merlin1A/air-pulse/internal/protocol"
)

// Archive is the persistence the scoring job reads pairs from and writes to
type Archive interface {
	FindPairs(ctx context.Context, from, to time.Time, tolerance time.Duration) ([]Pair, error)
	// SaveReport reports whether the report was new or changed
	SaveReport(ctx context.Context, report AccuracyReport) (bool, error)
}

// Publisher receives encoded accuracy messages, keyed by location
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// JobStats summarizes one run
type JobStats struct {
	Pairs     int
	Scored    int
	Skipped   int
	Unchanged int
	Published int
}

// Job periodically scores forecasts whose target time has been observed
type Job struct {
	archive   Archive
	publisher Publisher // optional
	lookback  time.Duration
	tolerance time.Duration
	now       func() time.Time
	scheduler *gocron.Scheduler
}

// NewJob creates a scoring job over the last lookback of forecasts.
// tolerance is the maximum distance between a forecast time and its observation.
func NewJob(archive Archive, publisher Publisher, lookback, tolerance time.Duration) *Job {
	return &Job{
		archive:   archive,
		publisher: publisher,
		lookback:  lookback,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Run scores one window ending now
func (j *Job) Run(ctx context.Context) (JobStats, error) {
	var stats JobStats

	to := j.now().UTC()
	from := to.Add(-j.lookback)
	pairs, err := j.archive.FindPairs(ctx, from, to, j.tolerance)
	if err != nil {
		return stats, fmt.Errorf("failed to load forecast pairs: %w", err)
	}
	stats.Pairs = len(pairs)

	reports, errs := ScoreBatch(pairs)
	for _, err := range errs {
		log.Printf("scoring: skipped %v", err)
	}
	stats.Skipped = len(errs)

	for _, report := range reports {
		written, err := j.archive.SaveReport(ctx, report)
		if err != nil {
			log.Printf("scoring: failed to save report for %s: %v", report.LocationKey, err)
			stats.Skipped++
			continue
		}
		stats.Scored++
		if !written {
			// Scored on an earlier run against the same observation
			stats.Unchanged++
			continue
		}

		if j.publisher == nil {
			continue
		}
		data, err := protocol.EncodeAccuracyMessage(toMessage(report))
		if err != nil {
			log.Printf("scoring: failed to encode report: %v", err)
			continue
		}
		if err := j.publisher.Publish(ctx, report.LocationKey, data); err != nil {
			log.Printf("scoring: failed to publish report for %s: %v", report.LocationKey, err)
			continue
		}
		stats.Published++
	}

	return stats, nil
}

// Start runs the job every interval until Stop. Overlapping runs are skipped.
func (j *Job) Start(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scoring interval must be positive, got %s", interval)
	}

	j.scheduler = gocron.NewScheduler(time.UTC)
	_, err := j.scheduler.Every(interval).SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()

		stats, err := j.Run(ctx)
		if err != nil {
			log.Printf("scoring: run failed: %v", err)
			return
		}
		log.Printf("scoring: pairs=%d scored=%d skipped=%d unchanged=%d published=%d",
			stats.Pairs, stats.Scored, stats.Skipped, stats.Unchanged, stats.Published)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule scoring job: %w", err)
	}

	j.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler
func (j *Job) Stop() {
	if j.scheduler != nil {
		j.scheduler.Stop()
	}
}

func toMessage(r AccuracyReport) *protocol.AccuracyMessage {
	msg := &protocol.AccuracyMessage{
		LocationKey:       r.LocationKey,
		ForecastTime:      r.Timestamp,
		IssuedAt:          r.IssuedAt,
		PerPollutantError: make(map[string]float64, len(r.PerPollutantError)),
		OverallError:      r.OverallError,
	}
	for p, v := range r.PerPollutantError {
		msg.PerPollutantError[string(p)] = v
	}
	for _, p := range r.Excluded {
		msg.Excluded = append(msg.Excluded, string(p))
	}
	return msg
}
