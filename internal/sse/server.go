package sse

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

// Server serves the presence stream over server-sent events.
type Server struct {
	hub       *Hub
	heartbeat time.Duration
}

func NewServer(hub *Hub, heartbeat time.Duration) *Server {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Server{hub: hub, heartbeat: heartbeat}
}

// HandleStream streams presence snapshots to one client. Each event's data
// is a JSON array of presence records; a comment-only line is written on a
// fixed interval to defeat idle-connection timeouts.
func (s *Server) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-sub.Events():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				log.Printf("presence stream write failed: %v", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
