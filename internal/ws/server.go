package ws

import (
	"log"
	"net/http"

	"wavelength/internal/auth"

	"github.com/gorilla/websocket"
)

type sessionVerifier interface {
	Identity(token string) (auth.Identity, error)
}

// Server upgrades authenticated HTTP requests to chat connections.
type Server struct {
	sessions sessionVerifier
	hub      *Hub
	upgrader *websocket.Upgrader
}

func NewServer(sessions sessionVerifier, hub *Hub) *Server {
	return &Server{
		sessions: sessions,
		hub:      hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleConnections is the websocket endpoint. The session token comes from
// the "token" header or, for clients that cannot set headers on the
// upgrade request, the "token" query parameter.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	identity, err := s.sessions.Identity(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	c := NewConnection(s.hub, conn, identity)
	if err := c.Handle(r.Context()); err != nil {
		log.Printf("connection closed with error: %v", err)
	}
}
