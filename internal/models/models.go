package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// RoomGlobal is the shared room every joined user is a member of.
// Direct 1:1 rooms are addressed by the peer's user id.
const RoomGlobal = "global"

type PresenceStatus string

const (
	PresenceStatusLive   PresenceStatus = "live"
	PresenceStatusRecent PresenceStatus = "recent"
)

// Track describes what a user is currently listening to.
type Track struct {
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	AlbumArtURL string `json:"albumArtUrl,omitempty"`
}

// PresenceRecord is the latest known location/listening snapshot for one
// user. Records older than the store TTL are treated as absent.
type PresenceRecord struct {
	ID               string         `json:"id"`
	Latitude         float64        `json:"latitude"`
	Longitude        float64        `json:"longitude"`
	DisplayName      string         `json:"displayName"`
	AvatarURL        string         `json:"avatarUrl,omitempty"`
	CurrentlyPlaying *Track         `json:"currentlyPlaying,omitempty"`
	Status           PresenceStatus `json:"status"`
	LastUpdated      time.Time      `json:"lastUpdated"`
}

// ChatMessage is a delivered chat message. Room is either RoomGlobal or the
// peer's user id for a 1:1 conversation. IsGIF tells clients to render the
// body as an image link. IsSystem marks locally synthesized status messages;
// they are never sent over the wire.
type ChatMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Content   string `json:"content"`
	Room      string `json:"room"`
	IsGIF     bool   `json:"isGif,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp (seconds)
	IsSystem  bool   `json:"-"`
}
