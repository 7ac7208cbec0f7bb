package preference

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Merlin1A/air-pulse/internal/reading"
)

type memoryEntry struct {
	mu   sync.Mutex
	pref *UserPreference // nil until the first SetPreference completes
}

// MemoryStore is a concurrency-safe in-process Store.
// Each user has its own mutex; the maps are only locked to find an entry.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry        // key: user_id
	byLocation map[string]map[string]struct{} // key: location_key, value: set of user_id
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		byLocation: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) entry(userID string, create bool) *memoryEntry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; !ok {
		e = &memoryEntry{}
		s.entries[userID] = e
	}
	return e
}

// SetPreference upserts the record for pref.UserID
func (s *MemoryStore) SetPreference(ctx context.Context, pref UserPreference) error {
	if err := pref.Validate(); err != nil {
		return err
	}

	e := s.entry(pref.UserID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	next := pref.Clone()
	oldLocation := ""
	if e.pref != nil {
		oldLocation = e.pref.LocationKey
		if next.LastAlertAt == nil {
			next.LastAlertAt = e.pref.Clone().LastAlertAt
		}
	}
	if next.LastAlertAt == nil {
		next.LastAlertAt = make(map[reading.Pollutant]time.Time)
	}
	e.pref = &next

	if oldLocation != next.LocationKey {
		s.reindex(next.UserID, oldLocation, next.LocationKey)
	}
	return nil
}

func (s *MemoryStore) reindex(userID, from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if users, ok := s.byLocation[from]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(s.byLocation, from)
		}
	}
	users, ok := s.byLocation[to]
	if !ok {
		users = make(map[string]struct{})
		s.byLocation[to] = users
	}
	users[userID] = struct{}{}
}

// GetPreference returns a copy of the stored record, or nil if absent
func (s *MemoryStore) GetPreference(ctx context.Context, userID string) (*UserPreference, error) {
	e := s.entry(userID, false)
	if e == nil {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pref == nil {
		return nil, nil
	}
	out := e.pref.Clone()
	return &out, nil
}

// RecordAlert sets the cooldown timestamp of a single pollutant
func (s *MemoryStore) RecordAlert(ctx context.Context, userID string, pollutant reading.Pollutant, at time.Time) error {
	e := s.entry(userID, false)
	if e == nil {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pref == nil {
		return ErrNotFound
	}
	e.pref.LastAlertAt[pollutant] = at
	return nil
}

// ListByLocation returns copies of every record at locationKey, ordered by user id
func (s *MemoryStore) ListByLocation(ctx context.Context, locationKey string) ([]*UserPreference, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.byLocation[locationKey]))
	for id := range s.byLocation[locationKey] {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	var out []*UserPreference
	for _, id := range ids {
		pref, err := s.GetPreference(ctx, id)
		if err != nil {
			return nil, err
		}
		// Location may have changed between the index read and the entry read
		if pref != nil && pref.LocationKey == locationKey {
			out = append(out, pref)
		}
	}
	return out, nil
}
