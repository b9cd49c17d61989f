package ingest

import (
	"errors"
	"fmt"

	"wavelength/internal/models"
	"wavelength/internal/presence"
)

var (
	ErrMissingID       = errors.New("missing user id")
	ErrMissingLocation = errors.New("missing latitude or longitude")
)

// Update is one location/listening sample as produced by a client. Latitude
// and longitude are pointers so a missing field can be told apart from 0.
type Update struct {
	ID               string                `json:"id"`
	Latitude         *float64              `json:"latitude"`
	Longitude        *float64              `json:"longitude"`
	DisplayName      string                `json:"displayName,omitempty"`
	AvatarURL        string                `json:"avatarUrl,omitempty"`
	Status           models.PresenceStatus `json:"status,omitempty"`
	CurrentlyPlaying *models.Track         `json:"currentlyPlaying,omitempty"`
}

func (u *Update) Validate() error {
	if u.ID == "" {
		return ErrMissingID
	}
	if u.Latitude == nil || u.Longitude == nil {
		return ErrMissingLocation
	}
	if *u.Latitude < -90 || *u.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", *u.Latitude)
	}
	if *u.Longitude < -180 || *u.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", *u.Longitude)
	}
	switch u.Status {
	case "", models.PresenceStatusLive, models.PresenceStatusRecent:
	default:
		return fmt.Errorf("unknown status %q", u.Status)
	}
	return nil
}

// Pipeline applies validated updates to the presence store. Both the broker
// consumer and the direct HTTP path go through it, so the two entry points
// share one contract.
type Pipeline struct {
	store    *presence.Store
	onChange func()
}

// NewPipeline returns a pipeline writing to store. onChange is invoked after
// every successful mutation; the composing component uses it to publish a
// fresh snapshot.
func NewPipeline(store *presence.Store, onChange func()) *Pipeline {
	return &Pipeline{store: store, onChange: onChange}
}

// Apply validates u and replaces the presence record for u.ID. A validation
// error leaves the store untouched.
func (p *Pipeline) Apply(u Update) (models.PresenceRecord, error) {
	if err := u.Validate(); err != nil {
		return models.PresenceRecord{}, err
	}

	status := u.Status
	if status == "" {
		status = models.PresenceStatusLive
	}

	rec := p.store.Upsert(models.PresenceRecord{
		ID:               u.ID,
		Latitude:         *u.Latitude,
		Longitude:        *u.Longitude,
		DisplayName:      u.DisplayName,
		AvatarURL:        u.AvatarURL,
		CurrentlyPlaying: u.CurrentlyPlaying,
		Status:           status,
	})

	if p.onChange != nil {
		p.onChange()
	}
	return rec, nil
}

// Delete removes the presence record for id. It reports whether a record
// existed.
func (p *Pipeline) Delete(id string) bool {
	removed := p.store.Remove(id)
	if removed && p.onChange != nil {
		p.onChange()
	}
	return removed
}
