package scoring

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

func newReading(loc string, levels map[reading.Pollutant]float64) reading.Reading {
	return reading.Reading{
		LocationKey: loc,
		Timestamp:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Levels:      levels,
	}
}

func TestScore_ExcludesZeroActual(t *testing.T) {
	forecast := newReading("10001", map[reading.Pollutant]float64{reading.PM25: 50, reading.O3: 20})
	actual := newReading("10001", map[reading.Pollutant]float64{reading.PM25: 40, reading.O3: 0})

	report, err := Score(forecast, actual)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if len(report.PerPollutantError) != 1 {
		t.Fatalf("Expected 1 scored pollutant, got %d", len(report.PerPollutantError))
	}
	if got := report.PerPollutantError[reading.PM25]; math.Abs(got-0.25) > 1e-9 {
		t.Errorf("Expected PM2.5 error 0.25, got %v", got)
	}
	if math.Abs(report.OverallError-0.25) > 1e-9 {
		t.Errorf("Expected overall error 0.25, got %v", report.OverallError)
	}
	if len(report.Excluded) != 1 || report.Excluded[0] != reading.O3 {
		t.Errorf("Expected O3 excluded, got %v", report.Excluded)
	}
}

func TestScore_Identical(t *testing.T) {
	r := newReading("10001", map[reading.Pollutant]float64{reading.PM25: 12, reading.PM10: 30, reading.AQI: 55})

	report, err := Score(r, r)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if report.OverallError != 0 {
		t.Errorf("Expected overall error 0, got %v", report.OverallError)
	}
	for p, e := range report.PerPollutantError {
		if e != 0 {
			t.Errorf("Expected error 0 for %s, got %v", p, e)
		}
	}
}

func TestScore_OneSidedPollutants(t *testing.T) {
	forecast := newReading("10001", map[reading.Pollutant]float64{reading.PM25: 30, reading.PM10: 10})
	actual := newReading("10001", map[reading.Pollutant]float64{reading.PM25: 20, reading.AQI: 40})

	report, err := Score(forecast, actual)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(report.OverallError-0.5) > 1e-9 {
		t.Errorf("Expected overall error 0.5, got %v", report.OverallError)
	}
	want := []reading.Pollutant{reading.AQI, reading.PM10}
	if len(report.Excluded) != len(want) {
		t.Fatalf("Expected %v excluded, got %v", want, report.Excluded)
	}
	for i := range want {
		if report.Excluded[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, report.Excluded[i])
		}
	}
}

func TestScore_Errors(t *testing.T) {
	_, err := Score(
		newReading("10001", map[reading.Pollutant]float64{reading.PM25: 10}),
		newReading("94105", map[reading.Pollutant]float64{reading.PM25: 10}),
	)
	if !errors.Is(err, ErrLocationMismatch) {
		t.Errorf("Expected ErrLocationMismatch, got %v", err)
	}

	_, err = Score(
		newReading("10001", map[reading.Pollutant]float64{reading.PM25: 10}),
		newReading("10001", map[reading.Pollutant]float64{reading.O3: 10}),
	)
	if !errors.Is(err, ErrNoComparablePollutants) {
		t.Errorf("Expected ErrNoComparablePollutants, got %v", err)
	}

	_, err = Score(
		newReading("10001", map[reading.Pollutant]float64{reading.PM25: 10}),
		newReading("10001", map[reading.Pollutant]float64{reading.PM25: 0}),
	)
	if !errors.Is(err, ErrNoComparablePollutants) {
		t.Errorf("Expected ErrNoComparablePollutants for zero actual, got %v", err)
	}
}

func TestScoreBatch_ContinuesPastFailures(t *testing.T) {
	issued := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	good := Pair{
		Forecast: newReading("10001", map[reading.Pollutant]float64{reading.PM25: 11}),
		Actual:   newReading("10001", map[reading.Pollutant]float64{reading.PM25: 10}),
		IssuedAt: issued,
	}
	bad := Pair{
		Forecast: newReading("10001", map[reading.Pollutant]float64{reading.PM25: 11}),
		Actual:   newReading("94105", map[reading.Pollutant]float64{reading.PM25: 10}),
	}

	reports, errs := ScoreBatch([]Pair{bad, good})
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrLocationMismatch) {
		t.Errorf("Expected one ErrLocationMismatch, got %v", errs)
	}
	if !reports[0].IssuedAt.Equal(issued) {
		t.Errorf("Expected IssuedAt %v, got %v", issued, reports[0].IssuedAt)
	}
}
