package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

var (
	// ErrStoreFailure means cooldown state could not be read or persisted.
	// The affected alert is withheld; the caller should retry the cycle.
	ErrStoreFailure = errors.New("preference store failure")
	// ErrInvalidReading is returned for readings that break the Reading invariants
	ErrInvalidReading = errors.New("invalid reading")
)

// Alert is a threshold breach for one user, location and pollutant
type Alert struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	LocationKey    string            `json:"location_key"`
	Pollutant      reading.Pollutant `json:"pollutant"`
	ObservedValue  float64           `json:"observed_value"`
	ThresholdValue float64           `json:"threshold_value"`
	Severity       float64           `json:"severity"` // observed / threshold
	Timestamp      time.Time         `json:"timestamp"`
	RaisedAt       time.Time         `json:"raised_at"`
}

// Dispatcher delivers alerts. Delivery success or failure is its own concern.
type Dispatcher interface {
	Dispatch(ctx context.Context, alerts []Alert) error
}

// DispatcherFunc adapts a function to Dispatcher
type DispatcherFunc func(ctx context.Context, alerts []Alert) error

func (f DispatcherFunc) Dispatch(ctx context.Context, alerts []Alert) error {
	return f(ctx, alerts)
}

// EvalError reports a store failure for one user. It matches both
// ErrStoreFailure and the underlying store error with errors.Is.
type EvalError struct {
	UserID      string
	LocationKey string
	Pollutant   reading.Pollutant // empty when the failure was not pollutant specific
	Err         error
}

func (e *EvalError) Error() string {
	switch {
	case e.Pollutant != "":
		return fmt.Sprintf("evaluate user %s pollutant %s: %v: %v", e.UserID, e.Pollutant, ErrStoreFailure, e.Err)
	case e.UserID != "":
		return fmt.Sprintf("evaluate user %s: %v: %v", e.UserID, ErrStoreFailure, e.Err)
	default:
		return fmt.Sprintf("evaluate location %s: %v: %v", e.LocationKey, ErrStoreFailure, e.Err)
	}
}

func (e *EvalError) Unwrap() []error {
	return []error{ErrStoreFailure, e.Err}
}
