package auth

import (
	"context"
	"errors"
	"time"

	"github.com/c-pro/geche"
)

const DefaultSessionExpiry = 24 * time.Hour

var (
	ErrEmptyToken     = errors.New("token is required")
	ErrEmptyUserID    = errors.New("user id is required")
	ErrInvalidSession = errors.New("invalid or expired session")
)

// Identity is who a session token belongs to. The token itself is an opaque
// credential minted by the external login flow; this registry only maps it
// to a user for the lifetime of the session.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Sessions is the live session-token registry. Entries expire on their own;
// there is no explicit logout in the core.
type Sessions struct {
	tokens geche.Geche[string, Identity]
}

func NewSessions(ctx context.Context, expiry time.Duration) *Sessions {
	if expiry <= 0 {
		expiry = DefaultSessionExpiry
	}
	return &Sessions{
		tokens: geche.NewMapTTLCache[string, Identity](ctx, expiry, time.Minute),
	}
}

// Register binds a token to an identity. Called by the login collaborator
// when a user completes authentication.
func (s *Sessions) Register(token string, id Identity) error {
	if token == "" {
		return ErrEmptyToken
	}
	if id.UserID == "" {
		return ErrEmptyUserID
	}
	s.tokens.Set(token, id)
	return nil
}

// Identity resolves a token to the identity it was registered with.
func (s *Sessions) Identity(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidSession
	}
	id, err := s.tokens.Get(token)
	if err != nil {
		return Identity{}, ErrInvalidSession
	}
	return id, nil
}
