package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"wavelength/internal/api"
	"wavelength/internal/sse"
	"wavelength/internal/ws"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, sseServer *sse.Server, addr string) *APIServer {
	mux := http.NewServeMux()

	// Location ingestion (direct path) and roster
	mux.HandleFunc("POST /api/locations", apiHandlers.UpsertLocationHandler)
	mux.HandleFunc("GET /api/locations", apiHandlers.ListLocationsHandler)
	mux.HandleFunc("DELETE /api/locations/{id}", apiHandlers.DeleteLocationHandler)

	// Session registration (called by the login collaborator)
	mux.HandleFunc("POST /api/sessions", apiHandlers.RegisterSessionHandler)

	// Direct message history
	mux.HandleFunc("GET /api/chat/history/{peer}", apiHandlers.RequireAuth(apiHandlers.DirectHistoryHandler))

	// Push subscriptions
	mux.HandleFunc("POST /api/push/subscriptions", apiHandlers.RequireAuth(apiHandlers.SubscribePushHandler))

	// Presence stream (SSE)
	mux.HandleFunc("GET /api/presence/stream", sseServer.HandleStream)

	// Chat gateway (websocket)
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
