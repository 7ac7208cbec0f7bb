package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Merlin1A/air-pulse/internal/protocol"
	"github.com/Merlin1A/air-pulse/internal/reading"
	"github.com/Merlin1A/air-pulse/internal/scoring"
)

// DB stores normalized readings and accuracy reports
type DB struct {
	Pool *pgxpool.Pool
}

// Record is one normalized reading with its provenance
type Record struct {
	Reading  reading.Reading
	Kind     protocol.PayloadKind
	Provider string
	IssuedAt *time.Time
}

func Connect(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

func (db *DB) Ready(ctx context.Context) error {
	var one int
	return db.Pool.QueryRow(ctx, "select 1").Scan(&one)
}

const upsertReadingQuery = `
INSERT INTO readings (location_key, kind, provider, ts, issued_at, levels)
VALUES ($1, $2, $3, $4, $5, $6::jsonb)
ON CONFLICT (location_key, kind, provider, ts) DO UPDATE
SET issued_at = EXCLUDED.issued_at,
    levels = EXCLUDED.levels,
    received_at = NOW()`

// SaveReadings upserts records in a single batch
func (db *DB) SaveReadings(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		levels, err := json.Marshal(rec.Reading.Levels)
		if err != nil {
			return fmt.Errorf("marshal levels: %w", err)
		}
		batch.Queue(upsertReadingQuery,
			rec.Reading.LocationKey, string(rec.Kind), rec.Provider,
			rec.Reading.Timestamp, rec.IssuedAt, string(levels))
	}

	res := db.Pool.SendBatch(ctx, batch)
	defer res.Close()

	for range records {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert reading: %w", err)
		}
	}
	return nil
}

// FindPairs joins every forecast for a time in [from, to) with the closest
// observation for the same location no further than tolerance away
func (db *DB) FindPairs(ctx context.Context, from, to time.Time, tolerance time.Duration) ([]scoring.Pair, error) {
	rows, err := db.Pool.Query(ctx, `
SELECT f.location_key, f.ts, COALESCE(f.issued_at, f.ts), f.levels, o.ts, o.levels
FROM readings f
JOIN LATERAL (
  SELECT obs.ts, obs.levels
  FROM readings obs
  WHERE obs.location_key = f.location_key
    AND obs.kind = 'observation'
    AND obs.ts BETWEEN f.ts - ($3::double precision * interval '1 second')
                   AND f.ts + ($3::double precision * interval '1 second')
  ORDER BY abs(EXTRACT(EPOCH FROM (obs.ts - f.ts))) ASC, obs.received_at DESC
  LIMIT 1
) o ON true
WHERE f.kind = 'forecast' AND f.ts >= $1 AND f.ts < $2
ORDER BY f.location_key, f.ts`, from, to, tolerance.Seconds())
	if err != nil {
		return nil, fmt.Errorf("query pairs: %w", err)
	}
	defer rows.Close()

	var out []scoring.Pair
	for rows.Next() {
		var (
			pair           scoring.Pair
			forecastLevels []byte
			actualLevels   []byte
		)
		if err := rows.Scan(&pair.Forecast.LocationKey, &pair.Forecast.Timestamp, &pair.IssuedAt,
			&forecastLevels, &pair.Actual.Timestamp, &actualLevels); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pair.Actual.LocationKey = pair.Forecast.LocationKey
		if err := json.Unmarshal(forecastLevels, &pair.Forecast.Levels); err != nil {
			return nil, fmt.Errorf("decode forecast levels: %w", err)
		}
		if err := json.Unmarshal(actualLevels, &pair.Actual.Levels); err != nil {
			return nil, fmt.Errorf("decode actual levels: %w", err)
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

// SaveReport upserts an accuracy report keyed by location, forecast time and
// issue time. It reports false when an identical report is already stored.
func (db *DB) SaveReport(ctx context.Context, report scoring.AccuracyReport) (bool, error) {
	errs, err := json.Marshal(report.PerPollutantError)
	if err != nil {
		return false, fmt.Errorf("marshal errors: %w", err)
	}

	issuedAt := report.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = report.Timestamp
	}

	tag, err := db.Pool.Exec(ctx, `
INSERT INTO accuracy_reports (location_key, forecast_ts, issued_at, per_pollutant_error, overall_error)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (location_key, forecast_ts, issued_at) DO UPDATE
SET per_pollutant_error = EXCLUDED.per_pollutant_error,
    overall_error = EXCLUDED.overall_error,
    scored_at = NOW()
WHERE accuracy_reports.per_pollutant_error IS DISTINCT FROM EXCLUDED.per_pollutant_error
   OR accuracy_reports.overall_error IS DISTINCT FROM EXCLUDED.overall_error`,
		report.LocationKey, report.Timestamp, issuedAt, string(errs), report.OverallError)
	if err != nil {
		return false, fmt.Errorf("insert report: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
