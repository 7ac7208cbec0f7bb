// Package engine runs one fetch-then-evaluate cycle per provider payload:
// decode, normalize, evaluate observations and hand alerts to a dispatcher.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Merlin1A/air-pulse/internal/alerting"
	"github.com/Merlin1A/air-pulse/internal/normalizer"
	"github.com/Merlin1A/air-pulse/internal/protocol"
	"github.com/Merlin1A/air-pulse/internal/reading"
)

// ErrMalformedPayload marks payloads that can never succeed and should be dropped
var ErrMalformedPayload = errors.New("malformed payload")

// Evaluator is the part of alerting.Evaluator the engine needs
type Evaluator interface {
	Evaluate(ctx context.Context, r reading.Reading, now time.Time, cooldown time.Duration) ([]alerting.Alert, error)
}

// Outcome describes what happened to one payload
type Outcome struct {
	LocationKey string
	Kind        protocol.PayloadKind
	Alerts      int
	Dropped     int // fields rejected during normalization
}

// Engine processes raw provider envelopes
type Engine struct {
	evaluator  Evaluator
	dispatcher alerting.Dispatcher
	cooldown   time.Duration
	now        func() time.Time
}

// New creates an engine. cooldown is the minimum time between two alerts
// for the same user and pollutant.
func New(evaluator Evaluator, dispatcher alerting.Dispatcher, cooldown time.Duration) *Engine {
	return &Engine{
		evaluator:  evaluator,
		dispatcher: dispatcher,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// Process handles one encoded envelope.
//
// Errors matching ErrMalformedPayload mean the payload was dropped. Errors
// matching alerting.ErrStoreFailure mean some alerts were withheld and the
// payload should be retried; alerts that were recorded are still dispatched.
func (e *Engine) Process(ctx context.Context, data []byte) (Outcome, error) {
	env, err := protocol.DecodeProviderEnvelope(data)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return e.ProcessEnvelope(ctx, env)
}

// ProcessEnvelope handles an already decoded envelope
func (e *Engine) ProcessEnvelope(ctx context.Context, env *protocol.ProviderEnvelope) (Outcome, error) {
	out := Outcome{LocationKey: env.LocationKey, Kind: env.Kind}

	result, err := normalizer.NormalizeEnvelope(env)
	if err != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Provider, err)
	}
	out.Dropped = len(result.Dropped)
	for _, d := range result.Dropped {
		log.Printf("engine: ignoring field from %s payload for %s: %v", env.Provider, env.LocationKey, d)
	}

	// Forecasts are archived and scored elsewhere, never alerted on
	if env.Kind == protocol.KindForecast {
		return out, nil
	}

	alerts, evalErr := e.evaluator.Evaluate(ctx, result.Reading, e.now(), e.cooldown)
	out.Alerts = len(alerts)

	if len(alerts) > 0 {
		if err := e.dispatcher.Dispatch(ctx, alerts); err != nil {
			// Cooldown is already recorded; delivery is the dispatcher's concern
			log.Printf("engine: failed to dispatch %d alerts for %s: %v", len(alerts), env.LocationKey, err)
		}
	}

	return out, evalErr
}

// Retryable reports whether a Process error should leave the payload
// uncommitted so the cycle runs again
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrMalformedPayload) && !errors.Is(err, alerting.ErrInvalidReading)
}
