package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

var (
	ErrLocationMismatch       = errors.New("forecast and actual are for different locations")
	ErrNoComparablePollutants = errors.New("no pollutant can be compared between forecast and actual")
)

// AccuracyReport holds the relative forecast error per pollutant.
// Relative error is abs(forecast - actual) / actual and is unitless.
type AccuracyReport struct {
	LocationKey       string                        `json:"location_key"`
	Timestamp         time.Time                     `json:"timestamp"` // instant the forecast was for
	IssuedAt          time.Time                     `json:"issued_at"`
	PerPollutantError map[reading.Pollutant]float64 `json:"per_pollutant_error"`
	OverallError      float64                       `json:"overall_error"`
	Excluded          []reading.Pollutant           `json:"excluded,omitempty"`
}

// Pair couples a forecast with the observation it is checked against
type Pair struct {
	Forecast reading.Reading
	Actual   reading.Reading
	IssuedAt time.Time
}

// Score compares forecast against actual.
//
// Only pollutants present in both readings are scored. A pollutant whose
// actual value is zero is excluded rather than producing an infinite error.
func Score(forecast, actual reading.Reading) (AccuracyReport, error) {
	if forecast.LocationKey != actual.LocationKey {
		return AccuracyReport{}, fmt.Errorf("%w: %q vs %q", ErrLocationMismatch, forecast.LocationKey, actual.LocationKey)
	}

	report := AccuracyReport{
		LocationKey:       forecast.LocationKey,
		Timestamp:         forecast.Timestamp,
		PerPollutantError: make(map[reading.Pollutant]float64),
	}

	excluded := make(map[reading.Pollutant]struct{})
	var sum float64
	for p, f := range forecast.Levels {
		a, ok := actual.Levels[p]
		if !ok || a == 0 || !reading.ValidLevel(a) || !reading.ValidLevel(f) {
			excluded[p] = struct{}{}
			continue
		}
		relErr := math.Abs(f-a) / a
		report.PerPollutantError[p] = relErr
		sum += relErr
	}
	for p := range actual.Levels {
		if _, ok := forecast.Levels[p]; !ok {
			excluded[p] = struct{}{}
		}
	}
	for p := range excluded {
		report.Excluded = append(report.Excluded, p)
	}
	sort.Slice(report.Excluded, func(i, j int) bool { return report.Excluded[i] < report.Excluded[j] })

	if len(report.PerPollutantError) == 0 {
		return AccuracyReport{}, ErrNoComparablePollutants
	}

	report.OverallError = sum / float64(len(report.PerPollutantError))
	return report, nil
}

// ScoreBatch scores every pair. A failing pair is reported in the error
// slice and never stops the rest of the batch.
func ScoreBatch(pairs []Pair) ([]AccuracyReport, []error) {
	var (
		reports []AccuracyReport
		errs    []error
	)
	for i, pair := range pairs {
		report, err := Score(pair.Forecast, pair.Actual)
		if err != nil {
			errs = append(errs, fmt.Errorf("pair %d (%s @ %s): %w",
				i, pair.Forecast.LocationKey, pair.Forecast.Timestamp.Format(time.RFC3339), err))
			continue
		}
		report.IssuedAt = pair.IssuedAt
		reports = append(reports, report)
	}
	return reports, errs
}
