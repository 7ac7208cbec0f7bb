package normalizer

import (
	"fmt"
	"time"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

// Google Air Quality API (currentConditions and hourly forecast items)

const (
	googleUnitMicrograms = "MICROGRAMS_PER_CUBIC_METER"
	googleUnitPPB        = "PARTS_PER_BILLION"
)

// googleUnits maps pollutant code to the accepted units and their factor to µg/m³
var googleUnits = map[string]struct {
	pollutant reading.Pollutant
	factors   map[string]float64
}{
	"pm25": {reading.PM25, map[string]float64{googleUnitMicrograms: 1}},
	"pm10": {reading.PM10, map[string]float64{googleUnitMicrograms: 1}},
	"o3":   {reading.O3, map[string]float64{googleUnitMicrograms: 1, googleUnitPPB: ozonePPBToUGM3}},
}

// googleIndexPriority lists the index codes used for AQI, preferred first
var googleIndexPriority = []string{"uaqi", "usa_epa"}

type GoogleIndex struct {
	Code              string  `json:"code"`
	DisplayName       string  `json:"displayName"`
	AQI               float64 `json:"aqi"`
	Category          string  `json:"category"`
	DominantPollutant string  `json:"dominantPollutant"`
}

type GoogleConcentration struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

type GooglePollutant struct {
	Code          string              `json:"code"`
	DisplayName   string              `json:"displayName"`
	Concentration GoogleConcentration `json:"concentration"`
}

// GooglePayload is one Google Air Quality conditions record
type GooglePayload struct {
	LocationKey string            `json:"-"`
	DateTime    string            `json:"dateTime"`
	RegionCode  string            `json:"regionCode"`
	Indexes     []GoogleIndex     `json:"indexes"`
	Pollutants  []GooglePollutant `json:"pollutants"`
}

func (g *GooglePayload) Provider() Provider { return ProviderGoogle }
func (g *GooglePayload) Location() string   { return g.LocationKey }

func (g *GooglePayload) convert() (time.Time, []field, error) {
	ts, err := time.Parse(time.RFC3339, g.DateTime)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("%w: dateTime %q", ErrMissingTimestamp, g.DateTime)
	}

	var fields []field
	for _, p := range g.Pollutants {
		entry, ok := googleUnits[p.Code]
		if !ok {
			continue
		}
		factor, ok := entry.factors[p.Concentration.Units]
		if !ok {
			fields = append(fields, field{
				pollutant: entry.pollutant,
				value:     p.Concentration.Value,
				reason:    fmt.Sprintf("unsupported unit %q", p.Concentration.Units),
			})
			continue
		}
		fields = append(fields, field{pollutant: entry.pollutant, value: p.Concentration.Value * factor})
	}

	for _, code := range googleIndexPriority {
		if idx, ok := g.index(code); ok {
			fields = append(fields, field{pollutant: reading.AQI, value: idx.AQI})
			break
		}
	}

	return ts, fields, nil
}

func (g *GooglePayload) index(code string) (GoogleIndex, bool) {
	for _, idx := range g.Indexes {
		if idx.Code == code {
			return idx, true
		}
	}
	return GoogleIndex{}, false
}

// OpenWeather Air Pollution API (one element of the "list" array)

// openWeatherComponents maps component names to pollutants. Values are µg/m³.
var openWeatherComponents = map[string]reading.Pollutant{
	"pm2_5": reading.PM25,
	"pm10":  reading.PM10,
	"o3":    reading.O3,
}

// OpenWeatherPayload is one OpenWeather air pollution sample.
// main.aqi is a 1 to 5 band rather than index points and is not mapped.
type OpenWeatherPayload struct {
	LocationKey string `json:"-"`
	Dt          int64  `json:"dt"`
	Main        struct {
		AQI int `json:"aqi"`
	} `json:"main"`
	Components map[string]float64 `json:"components"`
}

func (o *OpenWeatherPayload) Provider() Provider { return ProviderOpenWeather }
func (o *OpenWeatherPayload) Location() string   { return o.LocationKey }

func (o *OpenWeatherPayload) convert() (time.Time, []field, error) {
	if o.Dt <= 0 {
		return time.Time{}, nil, ErrMissingTimestamp
	}

	var fields []field
	for _, name := range []string{"pm2_5", "pm10", "o3"} {
		value, ok := o.Components[name]
		if !ok {
			continue
		}
		fields = append(fields, field{pollutant: openWeatherComponents[name], value: value})
	}
	return time.Unix(o.Dt, 0), fields, nil
}

// PurpleAir sensor API (one sensor record)

// PurpleAirPayload is a PurpleAir sensor record. PM values are µg/m³,
// ozone1 is ppb.
type PurpleAirPayload struct {
	LocationKey string   `json:"-"`
	SensorIndex int      `json:"sensor_index"`
	LastSeen    int64    `json:"last_seen"`
	PM25        *float64 `json:"pm2.5_atm"`
	PM10        *float64 `json:"pm10.0_atm"`
	Ozone       *float64 `json:"ozone1"`
}

func (p *PurpleAirPayload) Provider() Provider { return ProviderPurpleAir }
func (p *PurpleAirPayload) Location() string   { return p.LocationKey }

func (p *PurpleAirPayload) convert() (time.Time, []field, error) {
	if p.LastSeen <= 0 {
		return time.Time{}, nil, ErrMissingTimestamp
	}

	var fields []field
	if p.PM25 != nil {
		fields = append(fields, field{pollutant: reading.PM25, value: *p.PM25})
	}
	if p.PM10 != nil {
		fields = append(fields, field{pollutant: reading.PM10, value: *p.PM10})
	}
	if p.Ozone != nil {
		fields = append(fields, field{pollutant: reading.O3, value: *p.Ozone * ozonePPBToUGM3})
	}
	return time.Unix(p.LastSeen, 0), fields, nil
}
