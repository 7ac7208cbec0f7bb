package preference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

var (
	// ErrNotFound is returned by RecordAlert when the user has no preference
	ErrNotFound = errors.New("preference not found")
	// ErrUnavailable wraps any underlying storage fault. Callers may retry.
	ErrUnavailable = errors.New("preference store unavailable")
	// ErrInvalidPreference is returned when a record fails validation
	ErrInvalidPreference = errors.New("invalid preference")
)

// UserPreference is the alerting configuration of a single user
type UserPreference struct {
	UserID      string                          `json:"user_id"`
	LocationKey string                          `json:"location_key"`
	Thresholds  map[reading.Pollutant]float64   `json:"thresholds"`
	LastAlertAt map[reading.Pollutant]time.Time `json:"last_alert_at,omitempty"`
}

// Store is the read/write contract every preference backend implements.
//
// SetPreference replaces the whole record keyed by UserID. A nil LastAlertAt
// leaves the stored cooldown state untouched; a non-nil map replaces it.
// GetPreference returns (nil, nil) for an unknown user. RecordAlert updates a
// single cooldown entry and fails with ErrNotFound for an unknown user.
type Store interface {
	SetPreference(ctx context.Context, pref UserPreference) error
	GetPreference(ctx context.Context, userID string) (*UserPreference, error)
	RecordAlert(ctx context.Context, userID string, pollutant reading.Pollutant, at time.Time) error
	ListByLocation(ctx context.Context, locationKey string) ([]*UserPreference, error)
}

// Validate checks a record before it is written
func (p UserPreference) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidPreference)
	}
	if p.LocationKey == "" {
		return fmt.Errorf("%w: location_key is required", ErrInvalidPreference)
	}
	for pollutant, t := range p.Thresholds {
		if !pollutant.Valid() {
			return fmt.Errorf("%w: unknown pollutant %q", ErrInvalidPreference, pollutant)
		}
		if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
			return fmt.Errorf("%w: threshold for %s must be a positive number", ErrInvalidPreference, pollutant)
		}
	}
	for pollutant := range p.LastAlertAt {
		if !pollutant.Valid() {
			return fmt.Errorf("%w: unknown pollutant %q", ErrInvalidPreference, pollutant)
		}
	}
	return nil
}

// Clone returns a deep copy so callers never share maps with a store
func (p UserPreference) Clone() UserPreference {
	out := UserPreference{
		UserID:      p.UserID,
		LocationKey: p.LocationKey,
		Thresholds:  make(map[reading.Pollutant]float64, len(p.Thresholds)),
	}
	for k, v := range p.Thresholds {
		out.Thresholds[k] = v
	}
	if p.LastAlertAt != nil {
		out.LastAlertAt = make(map[reading.Pollutant]time.Time, len(p.LastAlertAt))
		for k, v := range p.LastAlertAt {
			out.LastAlertAt[k] = v
		}
	}
	return out
}

// LastAlert returns the last alert time for pollutant, if any
func (p UserPreference) LastAlert(pollutant reading.Pollutant) (time.Time, bool) {
	t, ok := p.LastAlertAt[pollutant]
	return t, ok
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
