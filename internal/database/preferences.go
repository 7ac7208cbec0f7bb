package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Merlin1A/air-pulse/internal/preference"
	"github.com/Merlin1A/air-pulse/internal/reading"
)

// PreferenceStore implements preference.Store on the user_preferences table.
// Each user is a single row; cooldown bookkeeping touches only last_alert_at.
type PreferenceStore struct {
	db *DB
}

// NewPreferenceStore creates a store on an open connection
func NewPreferenceStore(db *DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

const upsertPreferenceQuery = `
	INSERT INTO user_preferences (user_id, location_key, thresholds, last_alert_at)
	VALUES ($1, $2, $3::jsonb, COALESCE($4::jsonb, '{}'::jsonb))
	ON CONFLICT (user_id) DO UPDATE
	SET location_key = EXCLUDED.location_key,
	    thresholds = EXCLUDED.thresholds,
	    last_alert_at = CASE WHEN $4::jsonb IS NULL
	                         THEN user_preferences.last_alert_at
	                         ELSE EXCLUDED.last_alert_at END,
	    updated_at = CURRENT_TIMESTAMP
`

// SetPreference inserts or replaces a user's preference row
func (s *PreferenceStore) SetPreference(ctx context.Context, pref preference.UserPreference) error {
	if err := pref.Validate(); err != nil {
		return err
	}

	thresholds, err := json.Marshal(pref.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	// NULL keeps the stored cooldown state
	var lastAlert sql.NullString
	if pref.LastAlertAt != nil {
		raw, err := json.Marshal(pref.LastAlertAt)
		if err != nil {
			return fmt.Errorf("failed to marshal last_alert_at: %w", err)
		}
		lastAlert = sql.NullString{String: string(raw), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, upsertPreferenceQuery,
		pref.UserID, pref.LocationKey, string(thresholds), lastAlert); err != nil {
		return storeFault("set preference", err)
	}
	return nil
}

// GetPreference retrieves a preference by user id
func (s *PreferenceStore) GetPreference(ctx context.Context, userID string) (*preference.UserPreference, error) {
	query := `
		SELECT user_id, location_key, thresholds, last_alert_at
		FROM user_preferences
		WHERE user_id = $1
	`

	pref, err := scanPreference(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeFault("get preference", err)
	}
	return pref, nil
}

// RecordAlert sets last_alert_at[pollutant] without touching other columns
func (s *PreferenceStore) RecordAlert(ctx context.Context, userID string, pollutant reading.Pollutant, at time.Time) error {
	query := `
		UPDATE user_preferences
		SET last_alert_at = jsonb_set(last_alert_at, ARRAY[$2::text], to_jsonb($3::text), true),
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1
	`

	result, err := s.db.ExecContext(ctx, query, userID, string(pollutant), at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return storeFault("record alert", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storeFault("record alert", err)
	}
	if rows == 0 {
		return preference.ErrNotFound
	}
	return nil
}

// ListByLocation retrieves every preference registered for a location
func (s *PreferenceStore) ListByLocation(ctx context.Context, locationKey string) ([]*preference.UserPreference, error) {
	query := `
		SELECT user_id, location_key, thresholds, last_alert_at
		FROM user_preferences
		WHERE location_key = $1
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query, locationKey)
	if err != nil {
		return nil, storeFault("list by location", err)
	}
	defer rows.Close()

	var prefs []*preference.UserPreference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, storeFault("list by location", err)
		}
		prefs = append(prefs, pref)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault("list by location", err)
	}
	return prefs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPreference(row rowScanner) (*preference.UserPreference, error) {
	var (
		pref       preference.UserPreference
		thresholds []byte
		lastAlert  []byte
	)
	if err := row.Scan(&pref.UserID, &pref.LocationKey, &thresholds, &lastAlert); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(thresholds, &pref.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal thresholds: %w", err)
	}
	pref.LastAlertAt = make(map[reading.Pollutant]time.Time)
	if len(lastAlert) > 0 {
		if err := json.Unmarshal(lastAlert, &pref.LastAlertAt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last_alert_at: %w", err)
		}
	}
	return &pref, nil
}

func storeFault(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", preference.ErrUnavailable, op, err)
}
