package normalizer

import (
	"encoding/json"
	"fmt"

	"github.com/Merlin1A/air-pulse/internal/protocol"
)

// DecodePayload selects the Payload variant named by env.Provider and
// unmarshals env.Data into it
func DecodePayload(env *protocol.ProviderEnvelope) (Payload, error) {
	var p Payload
	switch Provider(env.Provider) {
	case ProviderGoogle:
		p = &GooglePayload{LocationKey: env.LocationKey}
	case ProviderOpenWeather:
		p = &OpenWeatherPayload{LocationKey: env.LocationKey}
	case ProviderPurpleAir:
		p = &PurpleAirPayload{LocationKey: env.LocationKey}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, env.Provider)
	}

	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", env.Provider, err)
	}
	return p, nil
}

// NormalizeEnvelope decodes and normalizes a raw envelope in one step
func NormalizeEnvelope(env *protocol.ProviderEnvelope) (Result, error) {
	p, err := DecodePayload(env)
	if err != nil {
		return Result{}, err
	}
	return Normalize(p)
}
