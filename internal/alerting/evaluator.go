package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Merlin1A/air-pulse/internal/preference"
	"github.com/Merlin1A/air-pulse/internal/reading"
)

// Evaluator checks readings against user thresholds and applies cooldown
type Evaluator struct {
	store preference.Store
	locks *keyedLocker
	newID func() string
}

// NewEvaluator creates a new evaluator backed by store
func NewEvaluator(store preference.Store) *Evaluator {
	return &Evaluator{
		store: store,
		locks: newKeyedLocker(),
		newID: func() string { return uuid.NewString() },
	}
}

// Evaluate checks r against every user registered at r.LocationKey.
//
// Users are evaluated independently: the returned alerts are those whose
// cooldown was recorded successfully, and the error joins one *EvalError per
// failure. An unmonitored location yields no alerts and no error.
func (e *Evaluator) Evaluate(ctx context.Context, r reading.Reading, now time.Time, cooldown time.Duration) ([]Alert, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	prefs, err := e.store.ListByLocation(ctx, r.LocationKey)
	if err != nil {
		return nil, &EvalError{LocationKey: r.LocationKey, Err: err}
	}

	var (
		alerts []Alert
		errs   []error
	)
	for _, pref := range prefs {
		userAlerts, err := e.evaluateUser(ctx, pref.UserID, r, now, cooldown)
		alerts = append(alerts, userAlerts...)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return alerts, errors.Join(errs...)
}

// EvaluateUser checks r against a single user's thresholds
func (e *Evaluator) EvaluateUser(ctx context.Context, userID string, r reading.Reading, now time.Time, cooldown time.Duration) ([]Alert, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	return e.evaluateUser(ctx, userID, r, now, cooldown)
}

// evaluateUser holds the user's lock from the cooldown read until every
// emitted alert has been recorded, so concurrent evaluations of the same
// user cannot both pass the cooldown check.
func (e *Evaluator) evaluateUser(ctx context.Context, userID string, r reading.Reading, now time.Time, cooldown time.Duration) ([]Alert, error) {
	e.locks.Lock(userID)
	defer e.locks.Unlock(userID)

	pref, err := e.store.GetPreference(ctx, userID)
	if err != nil {
		return nil, &EvalError{UserID: userID, LocationKey: r.LocationKey, Err: err}
	}
	if pref == nil || pref.LocationKey != r.LocationKey {
		return nil, nil
	}

	var (
		alerts []Alert
		errs   []error
	)
	for _, p := range r.Pollutants() {
		threshold, ok := pref.Thresholds[p]
		if !ok {
			continue
		}
		observed := r.Levels[p]
		if !breached(observed, threshold) {
			continue
		}
		if last, ok := pref.LastAlert(p); ok && !cooledDown(last, now, cooldown) {
			continue
		}

		if err := e.store.RecordAlert(ctx, userID, p, now); err != nil {
			errs = append(errs, &EvalError{UserID: userID, LocationKey: r.LocationKey, Pollutant: p, Err: err})
			continue
		}

		alerts = append(alerts, Alert{
			ID:             e.newID(),
			UserID:         userID,
			LocationKey:    r.LocationKey,
			Pollutant:      p,
			ObservedValue:  observed,
			ThresholdValue: threshold,
			Severity:       observed / threshold,
			Timestamp:      r.Timestamp,
			RaisedAt:       now,
		})
	}

	return alerts, errors.Join(errs...)
}

// breached is strict: a value equal to the threshold is not a breach
func breached(observed, threshold float64) bool {
	return threshold > 0 && observed > threshold
}

func cooledDown(last, now time.Time, cooldown time.Duration) bool {
	return now.Sub(last) >= cooldown
}
