package reading

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Pollutant identifies a measured quantity in a Reading
type Pollutant string

const (
	PM25 Pollutant = "PM2.5"
	PM10 Pollutant = "PM10"
	O3   Pollutant = "O3"
	AQI  Pollutant = "AQI" // overall index, index points rather than µg/m³
)

// All lists the pollutants the engine understands, in display order
var All = []Pollutant{PM25, PM10, O3, AQI}

// Valid reports whether p is a known pollutant
func (p Pollutant) Valid() bool {
	switch p {
	case PM25, PM10, O3, AQI:
		return true
	}
	return false
}

// Unit returns the canonical unit of p
func (p Pollutant) Unit() string {
	if p == AQI {
		return "index"
	}
	return "µg/m³"
}

var (
	ErrEmptyReading  = errors.New("reading has no pollutant levels")
	ErrNegativeLevel = errors.New("pollutant level is negative or not finite")
)

// Reading is a provider-independent air-quality sample in canonical units
type Reading struct {
	LocationKey string                `json:"location_key"`
	Timestamp   time.Time             `json:"timestamp"`
	Levels      map[Pollutant]float64 `json:"pollutant_levels"`
}

// Validate checks the Reading invariants
func (r Reading) Validate() error {
	if len(r.Levels) == 0 {
		return ErrEmptyReading
	}
	for p, v := range r.Levels {
		if !ValidLevel(v) {
			return fmt.Errorf("%w: %s=%v", ErrNegativeLevel, p, v)
		}
	}
	return nil
}

// Level returns the level for p and whether it was present
func (r Reading) Level(p Pollutant) (float64, bool) {
	v, ok := r.Levels[p]
	return v, ok
}

// Pollutants returns the pollutants present in r, sorted for stable output
func (r Reading) Pollutants() []Pollutant {
	out := make([]Pollutant, 0, len(r.Levels))
	for p := range r.Levels {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidLevel reports whether v is an acceptable concentration or index value
func ValidLevel(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
