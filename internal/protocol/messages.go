package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// PayloadKind tells whether a provider payload is a measurement or a forecast
type PayloadKind string

const (
	KindObservation PayloadKind = "observation"
	KindForecast    PayloadKind = "forecast"
)

// ProviderEnvelope is the message format for raw provider payloads on Kafka.
// Data holds the provider-native JSON selected by Provider.
type ProviderEnvelope struct {
	Provider    string          `json:"provider"`
	Kind        PayloadKind     `json:"kind"`
	LocationKey string          `json:"location_key"`
	IssuedAt    *time.Time      `json:"issued_at,omitempty"` // forecasts only
	FetchedAt   time.Time       `json:"fetched_at"`
	Data        json.RawMessage `json:"data"`
}

// AlertMessage is the message format for alert notifications
type AlertMessage struct {
	AlertID     string    `json:"alert_id"`
	UserID      string    `json:"user_id"`
	LocationKey string    `json:"location_key"`
	Pollutant   string    `json:"pollutant"`
	Unit        string    `json:"unit"`
	Value       float64   `json:"observed_value"`
	Threshold   float64   `json:"threshold_value"`
	Severity    float64   `json:"severity"`
	ReadingTime time.Time `json:"timestamp"`
	RaisedAt    time.Time `json:"raised_at"`
}

// AccuracyMessage is the message format for forecast accuracy reports
type AccuracyMessage struct {
	LocationKey       string             `json:"location_key"`
	ForecastTime      time.Time          `json:"forecast_time"`
	IssuedAt          time.Time          `json:"issued_at"`
	PerPollutantError map[string]float64 `json:"per_pollutant_error"`
	OverallError      float64            `json:"overall_error"`
	Excluded          []string           `json:"excluded,omitempty"`
}

// EncodeProviderEnvelope encodes a ProviderEnvelope to JSON
func EncodeProviderEnvelope(env *ProviderEnvelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeProviderEnvelope decodes and checks a ProviderEnvelope
func DecodeProviderEnvelope(data []byte) (*ProviderEnvelope, error) {
	var env ProviderEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if env.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	switch env.Kind {
	case KindObservation, KindForecast:
	case "":
		env.Kind = KindObservation
	default:
		return nil, fmt.Errorf("unknown payload kind: %s", env.Kind)
	}
	if len(env.Data) == 0 {
		return nil, fmt.Errorf("data is required")
	}
	return &env, nil
}

// EncodeAlertMessage encodes an AlertMessage to JSON
func EncodeAlertMessage(msg *AlertMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeAlertMessage decodes JSON to AlertMessage
func DecodeAlertMessage(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeAccuracyMessage encodes an AccuracyMessage to JSON
func EncodeAccuracyMessage(msg *AccuracyMessage) ([]byte, error) {
	return json.Marshal(msg)
}
