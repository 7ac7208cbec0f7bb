package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

const (
	fieldLocation    = "location_key"
	fieldThresholds  = "thresholds"
	alertFieldPrefix = "alert:"

	maxWatchRetries = 5
)

// recordAlertScript writes one cooldown field, but only on an existing record
var recordAlertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// RedisStore keeps one hash per user and one set of user ids per location.
// Cooldown timestamps live in their own hash fields so RecordAlert never
// rewrites thresholds.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func preferenceKey(userID string) string {
	return fmt.Sprintf("preference:%s", userID)
}

func locationKey(location string) string {
	return fmt.Sprintf("preference_location:%s", location)
}

func alertField(p reading.Pollutant) string {
	return alertFieldPrefix + string(p)
}

// SetPreference replaces the record using an optimistic WATCH/MULTI transaction
func (rs *RedisStore) SetPreference(ctx context.Context, pref UserPreference) error {
	if err := pref.Validate(); err != nil {
		return err
	}

	thresholds, err := json.Marshal(pref.Thresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}

	key := preferenceKey(pref.UserID)
	txf := func(tx *redis.Tx) error {
		oldLocation, err := tx.HGet(ctx, key, fieldLocation).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			fields := map[string]interface{}{
				fieldLocation:   pref.LocationKey,
				fieldThresholds: string(thresholds),
			}
			if pref.LastAlertAt != nil {
				pipe.Del(ctx, key)
				for p, at := range pref.LastAlertAt {
					fields[alertField(p)] = at.UTC().Format(time.RFC3339Nano)
				}
			}
			pipe.HSet(ctx, key, fields)

			if oldLocation != "" && oldLocation != pref.LocationKey {
				pipe.SRem(ctx, locationKey(oldLocation), pref.UserID)
			}
			pipe.SAdd(ctx, locationKey(pref.LocationKey), pref.UserID)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err = rs.redis.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return unavailable("set preference", err)
		}
	}
	return unavailable("set preference", fmt.Errorf("too many concurrent writers for %s", pref.UserID))
}

// GetPreference loads and decodes the hash for userID
func (rs *RedisStore) GetPreference(ctx context.Context, userID string) (*UserPreference, error) {
	fields, err := rs.redis.HGetAll(ctx, preferenceKey(userID)).Result()
	if err != nil {
		return nil, unavailable("get preference", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	pref, err := decodeFields(userID, fields)
	if err != nil {
		return nil, unavailable("decode preference", err)
	}
	return pref, nil
}

// RecordAlert updates a single cooldown field
func (rs *RedisStore) RecordAlert(ctx context.Context, userID string, pollutant reading.Pollutant, at time.Time) error {
	updated, err := recordAlertScript.Run(ctx, rs.redis,
		[]string{preferenceKey(userID)},
		alertField(pollutant), at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return unavailable("record alert", err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByLocation returns every record indexed under locationKey
func (rs *RedisStore) ListByLocation(ctx context.Context, location string) ([]*UserPreference, error) {
	ids, err := rs.redis.SMembers(ctx, locationKey(location)).Result()
	if err != nil {
		return nil, unavailable("list by location", err)
	}
	sort.Strings(ids)

	var out []*UserPreference
	for _, id := range ids {
		pref, err := rs.GetPreference(ctx, id)
		if err != nil {
			return nil, err
		}
		if pref != nil && pref.LocationKey == location {
			out = append(out, pref)
		}
	}
	return out, nil
}

func decodeFields(userID string, fields map[string]string) (*UserPreference, error) {
	pref := &UserPreference{
		UserID:      userID,
		LocationKey: fields[fieldLocation],
		Thresholds:  make(map[reading.Pollutant]float64),
		LastAlertAt: make(map[reading.Pollutant]time.Time),
	}

	if raw := fields[fieldThresholds]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &pref.Thresholds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thresholds: %w", err)
		}
	}

	for name, value := range fields {
		if !strings.HasPrefix(name, alertFieldPrefix) {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("invalid cooldown timestamp in %s: %w", name, err)
		}
		pref.LastAlertAt[reading.Pollutant(strings.TrimPrefix(name, alertFieldPrefix))] = at
	}
	return pref, nil
}
