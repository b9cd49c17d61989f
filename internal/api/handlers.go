package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"wavelength/internal/auth"
	"wavelength/internal/ingest"
	"wavelength/internal/models"
	"wavelength/internal/presence"
	"wavelength/internal/storage"
	"wavelength/internal/ws"
)

const directHistoryLimit = 100

type API struct {
	pipeline *ingest.Pipeline
	store    *presence.Store
	sessions *auth.Sessions
	storage  *storage.BboltStorage
}

func New(pipeline *ingest.Pipeline, store *presence.Store, sessions *auth.Sessions, storage *storage.BboltStorage) *API {
	return &API{
		pipeline: pipeline,
		store:    store,
		sessions: sessions,
		storage:  storage,
	}
}

type contextKey string

const identityKey contextKey = "identity"

// RequireAuth resolves the session token and stashes the identity in the
// request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.sessions.Identity(r.Header.Get("token"))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	}
}

func identityFrom(r *http.Request) (auth.Identity, bool) {
	id, ok := r.Context().Value(identityKey).(auth.Identity)
	return id, ok
}

// UpsertLocationHandler is the degraded/direct ingestion path. It feeds the
// same pipeline as the broker consumer.
func (a *API) UpsertLocationHandler(w http.ResponseWriter, r *http.Request) {
	var update ingest.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rec, err := a.pipeline.Apply(update)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListLocationsHandler returns the current live roster.
func (a *API) ListLocationsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Snapshot())
}

// DeleteLocationHandler removes one user's presence record.
func (a *API) DeleteLocationHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !a.pipeline.Delete(id) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// RegisterSessionHandler is the narrow interface the external login flow
// calls after it has authenticated a user: it binds the opaque session
// token to an identity.
func (a *API) RegisterSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		UserID      string `json:"userId"`
		DisplayName string `json:"displayName"`
		AvatarURL   string `json:"avatarUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := a.sessions.Register(req.Token, auth.Identity{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// DirectHistoryHandler returns the authenticated user's recent 1:1 history
// with one peer, oldest first. Both participants read the same room.
func (a *API) DirectHistoryHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	peer := r.PathValue("peer")
	if peer == "" || peer == identity.UserID {
		http.Error(w, "Invalid peer", http.StatusBadRequest)
		return
	}

	messages, err := a.storage.RecentMessages(ws.DirectRoomID(identity.UserID, peer), directHistoryLimit)
	if err != nil {
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// SubscribePushHandler registers a Web Push subscription for the
// authenticated user.
func (a *API) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := a.storage.SaveSubscription(storage.DBPushSubscription{
		UserID:   identity.UserID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
