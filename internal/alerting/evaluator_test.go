package alerting

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Merlin1A/air-pulse/internal/preference"
	"github.com/Merlin1A/air-pulse/internal/reading"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// faultyStore wraps a MemoryStore and fails RecordAlert for selected users
type faultyStore struct {
	*preference.MemoryStore
	failRecord map[string]bool
	failList   bool
}

func (s *faultyStore) RecordAlert(ctx context.Context, userID string, p reading.Pollutant, at time.Time) error {
	if s.failRecord[userID] {
		return errors.New("write timeout")
	}
	return s.MemoryStore.RecordAlert(ctx, userID, p, at)
}

func (s *faultyStore) ListByLocation(ctx context.Context, locationKey string) ([]*preference.UserPreference, error) {
	if s.failList {
		return nil, preference.ErrUnavailable
	}
	return s.MemoryStore.ListByLocation(ctx, locationKey)
}

func newStore(t *testing.T, prefs ...preference.UserPreference) *faultyStore {
	t.Helper()
	s := &faultyStore{MemoryStore: preference.NewMemoryStore(), failRecord: map[string]bool{}}
	for _, p := range prefs {
		if err := s.SetPreference(context.Background(), p); err != nil {
			t.Fatalf("SetPreference failed: %v", err)
		}
	}
	return s
}

func pm25Pref(userID string, threshold float64) preference.UserPreference {
	return preference.UserPreference{
		UserID:      userID,
		LocationKey: "10001",
		Thresholds:  map[reading.Pollutant]float64{reading.PM25: threshold},
	}
}

func pm25Reading(level float64) reading.Reading {
	return reading.Reading{
		LocationKey: "10001",
		Timestamp:   t0,
		Levels:      map[reading.Pollutant]float64{reading.PM25: level},
	}
}

func TestEvaluate_RaisesThenCoolsDown(t *testing.T) {
	ev := NewEvaluator(newStore(t, pm25Pref("u1", 35)))
	ctx := context.Background()

	alerts, err := ev.Evaluate(ctx, pm25Reading(40), t0, time.Hour)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}

	a := alerts[0]
	if a.UserID != "u1" || a.Pollutant != reading.PM25 || a.LocationKey != "10001" {
		t.Errorf("Unexpected alert: %+v", a)
	}
	if math.Abs(a.Severity-40.0/35.0) > 1e-9 {
		t.Errorf("Expected severity %v, got %v", 40.0/35.0, a.Severity)
	}
	if a.ObservedValue != 40 || a.ThresholdValue != 35 {
		t.Errorf("Expected 40 over 35, got %v over %v", a.ObservedValue, a.ThresholdValue)
	}
	if a.ID == "" {
		t.Error("Expected alert id")
	}
	if !a.Timestamp.Equal(t0) {
		t.Errorf("Expected reading timestamp %v, got %v", t0, a.Timestamp)
	}

	alerts, err = ev.Evaluate(ctx, pm25Reading(40), t0.Add(time.Second), time.Hour)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("Expected no alerts during cooldown, got %d", len(alerts))
	}

	alerts, _ = ev.Evaluate(ctx, pm25Reading(40), t0.Add(time.Hour), time.Hour)
	if len(alerts) != 1 {
		t.Errorf("Expected alert once cooldown has elapsed, got %d", len(alerts))
	}
}

func TestEvaluate_StrictThreshold(t *testing.T) {
	ev := NewEvaluator(newStore(t, pm25Pref("u1", 35)))

	alerts, err := ev.Evaluate(context.Background(), pm25Reading(35), t0, time.Hour)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("Expected no alert at exactly the threshold, got %d", len(alerts))
	}
}

func TestEvaluate_CooldownIsPerPollutant(t *testing.T) {
	pref := pm25Pref("u1", 35)
	pref.Thresholds[reading.O3] = 100
	ev := NewEvaluator(newStore(t, pref))
	ctx := context.Background()

	ev.Evaluate(ctx, pm25Reading(50), t0, time.Hour)

	r := reading.Reading{
		LocationKey: "10001",
		Timestamp:   t0,
		Levels:      map[reading.Pollutant]float64{reading.PM25: 50, reading.O3: 120},
	}
	alerts, err := ev.Evaluate(ctx, r, t0.Add(time.Minute), time.Hour)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].Pollutant != reading.O3 {
		t.Errorf("Expected only an O3 alert, got %+v", alerts)
	}
}

func TestEvaluate_ZeroCooldown(t *testing.T) {
	ev := NewEvaluator(newStore(t, pm25Pref("u1", 35)))
	ctx := context.Background()

	ev.Evaluate(ctx, pm25Reading(40), t0, 0)
	alerts, _ := ev.Evaluate(ctx, pm25Reading(40), t0, 0)
	if len(alerts) != 1 {
		t.Errorf("Expected alert with zero cooldown, got %d", len(alerts))
	}
}

func TestEvaluate_UnmonitoredLocation(t *testing.T) {
	ev := NewEvaluator(newStore(t, pm25Pref("u1", 35)))

	r := pm25Reading(400)
	r.LocationKey = "94105"
	alerts, err := ev.Evaluate(context.Background(), r, t0, time.Hour)
	if err != nil || len(alerts) != 0 {
		t.Errorf("Expected no alerts and no error, got %d alerts and %v", len(alerts), err)
	}
}

func TestEvaluate_InvalidReading(t *testing.T) {
	ev := NewEvaluator(newStore(t))

	_, err := ev.Evaluate(context.Background(), reading.Reading{LocationKey: "10001"}, t0, time.Hour)
	if !errors.Is(err, ErrInvalidReading) {
		t.Errorf("Expected ErrInvalidReading, got %v", err)
	}
}

func TestEvaluate_FailsClosedOnRecordError(t *testing.T) {
	store := newStore(t, pm25Pref("u1", 35), pm25Pref("u2", 35))
	store.failRecord["u1"] = true
	ev := NewEvaluator(store)

	alerts, err := ev.Evaluate(context.Background(), pm25Reading(40), t0, time.Hour)
	if !errors.Is(err, ErrStoreFailure) {
		t.Fatalf("Expected ErrStoreFailure, got %v", err)
	}
	var evalErr *EvalError
	if !errors.As(err, &evalErr) || evalErr.UserID != "u1" || evalErr.Pollutant != reading.PM25 {
		t.Errorf("Expected EvalError for u1/PM2.5, got %v", err)
	}

	// u1 is withheld, u2 proceeds
	if len(alerts) != 1 || alerts[0].UserID != "u2" {
		t.Fatalf("Expected a single alert for u2, got %+v", alerts)
	}

	// Once the store recovers, u1 is alerted on retry and u2 stays in cooldown
	store.failRecord["u1"] = false
	alerts, err = ev.Evaluate(context.Background(), pm25Reading(40), t0.Add(time.Second), time.Hour)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0].UserID != "u1" {
		t.Errorf("Expected a single alert for u1 on retry, got %+v", alerts)
	}
}

func TestEvaluate_ListFailure(t *testing.T) {
	store := newStore(t, pm25Pref("u1", 35))
	store.failList = true
	ev := NewEvaluator(store)

	_, err := ev.Evaluate(context.Background(), pm25Reading(40), t0, time.Hour)
	if !errors.Is(err, ErrStoreFailure) || !errors.Is(err, preference.ErrUnavailable) {
		t.Errorf("Expected store failure wrapping ErrUnavailable, got %v", err)
	}
}

func TestEvaluate_ConcurrentSameUser(t *testing.T) {
	ev := NewEvaluator(newStore(t, pm25Pref("u1", 35)))
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alerts, err := ev.Evaluate(ctx, pm25Reading(40), t0, time.Hour)
			if err != nil {
				t.Errorf("Evaluate failed: %v", err)
			}
			mu.Lock()
			total += len(alerts)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 1 {
		t.Errorf("Expected exactly 1 alert across concurrent evaluations, got %d", total)
	}
	if ev.locks.size() != 0 {
		t.Errorf("Expected lock table to be empty, got %d entries", ev.locks.size())
	}
}

func TestEvaluateUser(t *testing.T) {
	ev := NewEvaluator(newStore(t, pm25Pref("u1", 35)))
	ctx := context.Background()

	alerts, err := ev.EvaluateUser(ctx, "u1", pm25Reading(36), t0, time.Hour)
	if err != nil || len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d (%v)", len(alerts), err)
	}

	alerts, err = ev.EvaluateUser(ctx, "nobody", pm25Reading(36), t0, time.Hour)
	if err != nil || len(alerts) != 0 {
		t.Errorf("Expected nothing for unknown user, got %d (%v)", len(alerts), err)
	}
}
