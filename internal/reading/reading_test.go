package reading

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestReading_Validate(t *testing.T) {
	tests := []struct {
		name    string
		levels  map[Pollutant]float64
		wantErr error
	}{
		{"valid", map[Pollutant]float64{PM25: 12.5, AQI: 0}, nil},
		{"empty", map[Pollutant]float64{}, ErrEmptyReading},
		{"negative", map[Pollutant]float64{PM10: -1}, ErrNegativeLevel},
		{"nan", map[Pollutant]float64{O3: math.NaN()}, ErrNegativeLevel},
		{"inf", map[Pollutant]float64{O3: math.Inf(1)}, ErrNegativeLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Reading{LocationKey: "10001", Timestamp: time.Now(), Levels: tt.levels}
			err := r.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReading_Pollutants(t *testing.T) {
	r := Reading{Levels: map[Pollutant]float64{PM25: 1, AQI: 2, O3: 3}}

	got := r.Pollutants()
	want := []Pollutant{AQI, O3, PM25}
	if len(got) != len(want) {
		t.Fatalf("Expected %d pollutants, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, got[i])
		}
	}
}

func TestPollutant_ValidAndUnit(t *testing.T) {
	for _, p := range All {
		if !p.Valid() {
			t.Errorf("Expected %s to be valid", p)
		}
	}
	if Pollutant("CO").Valid() {
		t.Error("Expected CO to be invalid")
	}
	if PM25.Unit() != "µg/m³" {
		t.Errorf("Expected µg/m³, got %s", PM25.Unit())
	}
	if AQI.Unit() != "index" {
		t.Errorf("Expected index, got %s", AQI.Unit())
	}
}
