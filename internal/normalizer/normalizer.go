// Package normalizer converts provider-native air-quality payloads into
// canonical readings.
//
// Every provider is a Payload variant with its own fixed conversion table.
// Adding a provider means adding a variant and its convert method; nothing
// downstream changes.
package normalizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

// Provider names a data source and selects its conversion table
type Provider string

const (
	ProviderGoogle      Provider = "google"
	ProviderOpenWeather Provider = "openweather"
	ProviderPurpleAir   Provider = "purpleair"
)

// O3 at 25 °C and 1 atm: 48 g/mol / 24.45 L/mol
const ozonePPBToUGM3 = 1.96

var (
	ErrNoRecognizedPollutants = errors.New("payload has no recognized pollutant fields")
	ErrInvalidValue           = errors.New("invalid pollutant value")
	ErrUnknownProvider        = errors.New("unknown provider")
	ErrMissingLocation        = errors.New("payload has no location key")
	ErrMissingTimestamp       = errors.New("payload has no usable timestamp")
)

// InvalidValueError reports a single recognized field that could not be used
type InvalidValueError struct {
	Pollutant reading.Pollutant
	Value     float64
	Reason    string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %v (%s)", e.Pollutant, e.Value, e.Reason)
}

func (e *InvalidValueError) Unwrap() error {
	return ErrInvalidValue
}

// Payload is a provider-native structure tagged with its provider
type Payload interface {
	Provider() Provider
	Location() string
	convert() (time.Time, []field, error)
}

// field is one recognized pollutant value already converted to canonical units.
// A non-empty reason marks the field invalid before range checks.
type field struct {
	pollutant reading.Pollutant
	value     float64
	reason    string
}

// Result is a successful normalization. Dropped lists recognized fields that
// were rejected while the rest of the reading was kept.
type Result struct {
	Reading reading.Reading
	Dropped []*InvalidValueError
}

// Normalize maps p onto a canonical Reading
func Normalize(p Payload) (Result, error) {
	if p == nil {
		return Result{}, ErrUnknownProvider
	}
	if p.Location() == "" {
		return Result{}, ErrMissingLocation
	}

	ts, fields, err := p.convert()
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", p.Provider(), err)
	}
	if len(fields) == 0 {
		return Result{}, ErrNoRecognizedPollutants
	}

	levels := make(map[reading.Pollutant]float64, len(fields))
	var dropped []*InvalidValueError
	for _, f := range fields {
		if f.reason == "" && !reading.ValidLevel(f.value) {
			f.reason = "negative or non-finite"
		}
		if f.reason != "" {
			dropped = append(dropped, &InvalidValueError{Pollutant: f.pollutant, Value: f.value, Reason: f.reason})
			continue
		}
		// First valid value wins when a provider repeats a pollutant
		if _, seen := levels[f.pollutant]; !seen {
			levels[f.pollutant] = f.value
		}
	}

	if len(levels) == 0 {
		errs := make([]error, 0, len(dropped))
		for _, d := range dropped {
			errs = append(errs, d)
		}
		return Result{}, errors.Join(errs...)
	}

	return Result{
		Reading: reading.Reading{
			LocationKey: p.Location(),
			Timestamp:   ts.UTC(),
			Levels:      levels,
		},
		Dropped: dropped,
	}, nil
}
