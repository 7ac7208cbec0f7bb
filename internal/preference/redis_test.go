package preference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	got, err := store.GetPreference(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("Expected (nil, nil) for unknown user, got (%v, %v)", got, err)
	}

	pref := testPref("u1", "10001")
	pref.Thresholds[reading.O3] = 100
	if err := store.SetPreference(ctx, pref); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}

	got, err = store.GetPreference(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPreference failed: %v", err)
	}
	if got.LocationKey != "10001" || got.Thresholds[reading.PM25] != 35 || got.Thresholds[reading.O3] != 100 {
		t.Errorf("Unexpected preference: %+v", got)
	}
	if len(got.LastAlertAt) != 0 {
		t.Errorf("Expected no cooldown state, got %v", got.LastAlertAt)
	}
}

func TestRedisStore_Cooldown(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordAlert(ctx, "ghost", reading.PM25, at); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if got, _ := store.GetPreference(ctx, "ghost"); got != nil {
		t.Errorf("RecordAlert created a record for an unknown user: %+v", got)
	}

	store.SetPreference(ctx, testPref("u1", "10001"))
	if err := store.RecordAlert(ctx, "u1", reading.PM25, at); err != nil {
		t.Fatalf("RecordAlert failed: %v", err)
	}

	// nil LastAlertAt keeps cooldown state
	update := testPref("u1", "10001")
	update.Thresholds[reading.PM25] = 50
	if err := store.SetPreference(ctx, update); err != nil {
		t.Fatalf("SetPreference failed: %v", err)
	}
	got, _ := store.GetPreference(ctx, "u1")
	if last, ok := got.LastAlert(reading.PM25); !ok || !last.Equal(at) {
		t.Errorf("Expected cooldown %v kept, got %v (%v)", at, last, ok)
	}
	if got.Thresholds[reading.PM25] != 50 {
		t.Errorf("Expected threshold 50, got %v", got.Thresholds[reading.PM25])
	}

	// A non-nil map replaces it
	later := at.Add(time.Hour)
	update.LastAlertAt = map[reading.Pollutant]time.Time{reading.O3: later}
	store.SetPreference(ctx, update)
	got, _ = store.GetPreference(ctx, "u1")
	if _, ok := got.LastAlert(reading.PM25); ok {
		t.Error("Expected PM2.5 cooldown to be replaced")
	}
	if last, ok := got.LastAlert(reading.O3); !ok || !last.Equal(later) {
		t.Errorf("Expected O3 cooldown %v, got %v (%v)", later, last, ok)
	}

	// An empty map clears it
	update.LastAlertAt = map[reading.Pollutant]time.Time{}
	store.SetPreference(ctx, update)
	got, _ = store.GetPreference(ctx, "u1")
	if len(got.LastAlertAt) != 0 {
		t.Errorf("Expected cooldown state cleared, got %v", got.LastAlertAt)
	}
	if got.Thresholds[reading.PM25] != 50 {
		t.Errorf("Expected thresholds kept when clearing cooldowns, got %v", got.Thresholds)
	}
}

func TestRedisStore_Relocation(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)

	store.SetPreference(ctx, testPref("u1", "A"))
	store.SetPreference(ctx, testPref("u2", "A"))
	store.SetPreference(ctx, testPref("u1", "B"))

	if members, _ := mr.Members(locationKey("A")); len(members) != 1 || members[0] != "u2" {
		t.Errorf("Expected [u2] indexed at A, got %v", members)
	}
	if members, _ := mr.Members(locationKey("B")); len(members) != 1 || members[0] != "u1" {
		t.Errorf("Expected [u1] indexed at B, got %v", members)
	}

	prefs, err := store.ListByLocation(ctx, "B")
	if err != nil {
		t.Fatalf("ListByLocation failed: %v", err)
	}
	if len(prefs) != 1 || prefs[0].UserID != "u1" {
		t.Errorf("Expected [u1] at B, got %v", prefs)
	}

	// Stale index entries are filtered out
	mr.SAdd(locationKey("A"), "u1")
	prefs, _ = store.ListByLocation(ctx, "A")
	if len(prefs) != 1 || prefs[0].UserID != "u2" {
		t.Errorf("Expected [u2] at A, got %v", prefs)
	}
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)
	mr.Close()

	if _, err := store.GetPreference(ctx, "u1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := store.RecordAlert(ctx, "u1", reading.PM25, time.Now()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestDecodeFields(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	pref, err := decodeFields("u1", map[string]string{
		fieldLocation:          "10001",
		fieldThresholds:        `{"PM2.5":35}`,
		alertField(reading.O3): at.Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("decodeFields failed: %v", err)
	}
	if pref.LocationKey != "10001" || pref.Thresholds[reading.PM25] != 35 {
		t.Errorf("Unexpected preference: %+v", pref)
	}
	if last, ok := pref.LastAlert(reading.O3); !ok || !last.Equal(at) {
		t.Errorf("Expected O3 cooldown %v, got %v (%v)", at, last, ok)
	}

	if _, err := decodeFields("u1", map[string]string{alertField(reading.O3): "yesterday"}); err == nil {
		t.Error("Expected error for a malformed cooldown timestamp")
	}
}
