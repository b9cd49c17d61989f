package presence

import (
	"context"
	"testing"
	"time"

	"wavelength/internal/models"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(ttl)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func record(id string, lat, lon float64) models.PresenceRecord {
	return models.PresenceRecord{
		ID:        id,
		Latitude:  lat,
		Longitude: lon,
		Status:    models.PresenceStatusLive,
	}
}

func TestStore_SnapshotExcludesExpired(t *testing.T) {
	s, now := newTestStore(300 * time.Second)

	s.Upsert(record("u1", 10, 20))

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].ID != "u1" {
		t.Fatalf("expected u1 in snapshot, got %+v", snap)
	}

	// 301 seconds later with no update, a new subscriber must not see u1.
	*now = now.Add(301 * time.Second)
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Errorf("expected empty snapshot after TTL, got %+v", snap)
	}

	// Snapshot must not have mutated the store.
	s.mu.RLock()
	if _, ok := s.records["u1"]; !ok {
		t.Error("Snapshot deleted the expired record; only Sweep may mutate")
	}
	s.mu.RUnlock()
}

func TestStore_SnapshotSortedByID(t *testing.T) {
	s, _ := newTestStore(300 * time.Second)
	s.Upsert(record("u3", 1, 1))
	s.Upsert(record("u1", 2, 2))
	s.Upsert(record("u2", 3, 3))

	snap := s.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 records, got %d", len(snap))
	}
	for i, want := range []string{"u1", "u2", "u3"} {
		if snap[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, snap[i].ID)
		}
	}
}

func TestStore_UpsertIdempotent(t *testing.T) {
	s, now := newTestStore(300 * time.Second)

	first := s.Upsert(record("u1", 10, 20))
	*now = now.Add(10 * time.Second)
	second := s.Upsert(record("u1", 10, 20))

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 record after repeated upsert, got %d", len(snap))
	}
	if !second.LastUpdated.After(first.LastUpdated) {
		t.Error("second upsert did not refresh LastUpdated")
	}
	if !snap[0].LastUpdated.Equal(second.LastUpdated) {
		t.Error("stored record does not carry the later LastUpdated")
	}
}

func TestStore_UpsertReplacesWholeRecord(t *testing.T) {
	s, _ := newTestStore(300 * time.Second)

	rec := record("u1", 10, 20)
	rec.CurrentlyPlaying = &models.Track{Name: "Song", Artist: "Band"}
	s.Upsert(rec)

	// A later update without a track must clear the track: upsert is a full
	// replace, never a merge.
	s.Upsert(record("u1", 11, 21))

	snap := s.Snapshot()
	if snap[0].CurrentlyPlaying != nil {
		t.Error("upsert merged instead of replacing the record")
	}
	if snap[0].Latitude != 11 {
		t.Errorf("expected latitude 11, got %v", snap[0].Latitude)
	}
}

func TestStore_Remove(t *testing.T) {
	s, _ := newTestStore(300 * time.Second)
	s.Upsert(record("u1", 10, 20))

	if !s.Remove("u1") {
		t.Error("expected Remove to report an existing record")
	}
	if s.Remove("u1") {
		t.Error("expected Remove of a missing record to report false")
	}
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Errorf("expected empty snapshot after remove, got %+v", snap)
	}
}

func TestStore_Sweep(t *testing.T) {
	s, now := newTestStore(300 * time.Second)

	s.Upsert(record("u1", 10, 20))
	*now = now.Add(100 * time.Second)
	s.Upsert(record("u2", 30, 40))

	*now = now.Add(250 * time.Second) // u1 is 350s old, u2 is 250s old
	if removed := s.Sweep(); removed != 1 {
		t.Errorf("expected 1 record swept, got %d", removed)
	}

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].ID != "u2" {
		t.Errorf("expected only u2 to survive the sweep, got %+v", snap)
	}

	if removed := s.Sweep(); removed != 0 {
		t.Errorf("expected nothing left to sweep, got %d", removed)
	}
}

func TestStore_RunSweeperNotifiesOnEviction(t *testing.T) {
	s := NewStore(time.Millisecond)
	s.Upsert(record("u1", 10, 20))

	changed := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.RunSweeper(ctx, 5*time.Millisecond, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not report the eviction")
	}

	// The store emptied out; the broadcastable state is the empty snapshot.
	if snap := s.Snapshot(); len(snap) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}
