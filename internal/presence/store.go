package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"wavelength/internal/models"
)

const DefaultTTL = 300 * time.Second

// Store is the authoritative in-memory presence map. A record older than
// the TTL is logically absent: Snapshot never returns it, and the periodic
// sweep deletes it. Upsert is a full atomic replace for one user id.
type Store struct {
	ttl time.Duration

	mu      sync.RWMutex
	records map[string]models.PresenceRecord

	now func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		records: make(map[string]models.PresenceRecord),
		now:     time.Now,
	}
}

// Upsert replaces the record for rec.ID, refreshing LastUpdated. It returns
// the record as stored.
func (s *Store) Upsert(rec models.PresenceRecord) models.PresenceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.LastUpdated = s.now()
	s.records[rec.ID] = rec
	return rec
}

// Remove deletes the record for id unconditionally. It reports whether a
// record was present, expired or not.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.records[id]
	delete(s.records, id)
	return ok
}

// Snapshot returns all live records, sorted by user id. Expired entries are
// excluded without being deleted; deletion only happens in Sweep.
func (s *Store) Snapshot() []models.PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	result := make([]models.PresenceRecord, 0, len(s.records))
	for _, rec := range s.records {
		if now.Sub(rec.LastUpdated) < s.ttl {
			result = append(result, rec)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result
}

// Sweep deletes every expired record and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.records {
		if now.Sub(rec.LastUpdated) >= s.ttl {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps on a fixed interval until ctx is cancelled. When a sweep
// removed anything, onChange is called so subscribers see the new state,
// even when the store is now empty.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, onChange func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				slog.Debug("presence sweep evicted records", "removed", removed)
				if onChange != nil {
					onChange()
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
