package preference

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

// BreakerSettings controls when the store circuit opens
type BreakerSettings struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// BreakerStore wraps a Store in a circuit breaker. While the circuit is open
// every call fails fast with ErrUnavailable.
type BreakerStore struct {
	next    Store
	circuit *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a breaker configured by s
func NewBreakerStore(next Store, s BreakerSettings) *BreakerStore {
	failures := s.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only storage faults count against the circuit
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
	})

	return &BreakerStore{next: next, circuit: cb}
}

// State exposes the breaker state for health reporting
func (b *BreakerStore) State() string {
	return b.circuit.State().String()
}

func (b *BreakerStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.circuit.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, unavailable(op, err)
	}
	return result, err
}

func (b *BreakerStore) SetPreference(ctx context.Context, pref UserPreference) error {
	_, err := b.execute("set preference", func() (interface{}, error) {
		return nil, b.next.SetPreference(ctx, pref)
	})
	return err
}

func (b *BreakerStore) GetPreference(ctx context.Context, userID string) (*UserPreference, error) {
	result, err := b.execute("get preference", func() (interface{}, error) {
		return b.next.GetPreference(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	pref, _ := result.(*UserPreference)
	return pref, nil
}

func (b *BreakerStore) RecordAlert(ctx context.Context, userID string, pollutant reading.Pollutant, at time.Time) error {
	_, err := b.execute("record alert", func() (interface{}, error) {
		return nil, b.next.RecordAlert(ctx, userID, pollutant, at)
	})
	return err
}

func (b *BreakerStore) ListByLocation(ctx context.Context, locationKey string) ([]*UserPreference, error) {
	result, err := b.execute("list by location", func() (interface{}, error) {
		return b.next.ListByLocation(ctx, locationKey)
	})
	if err != nil {
		return nil, err
	}
	prefs, _ := result.([]*UserPreference)
	return prefs, nil
}
