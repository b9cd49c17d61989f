package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"wavelength/internal/client"
	"wavelength/internal/models"

	"github.com/stretchr/testify/require"
)

const (
	testAPIAddr = "127.0.0.1:18086"
	testBaseURL = "http://" + testAPIAddr
	testWSURL   = "ws://" + testAPIAddr + "/api/chat"
)

func TestIntegration(t *testing.T) {
	dbFile := "integration_test.db"
	_ = os.Remove(dbFile)
	defer func() { _ = os.Remove(dbFile) }()

	_ = os.Setenv("WAVELENGTH_DB", dbFile)
	_ = os.Setenv("API_ADDR", testAPIAddr)
	defer func() {
		_ = os.Unsetenv("WAVELENGTH_DB")
		_ = os.Unsetenv("API_ADDR")
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Server error: %v", err)
		}
	}()

	waitForServer(t, testBaseURL+"/api/locations", 20)

	t.Run("LocationIngestion", testLocationIngestion)
	t.Run("PresenceStream", testPresenceStream)
	t.Run("ChatEndToEnd", testChatEndToEnd)
}

func waitForServer(t *testing.T, url string, attempts int) {
	t.Helper()
	for i := 0; i < attempts; i++ {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("server did not come up")
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func testLocationIngestion(t *testing.T) {
	// Valid update is stored and returned.
	resp := postJSON(t, testBaseURL+"/api/locations", map[string]any{
		"id":        "loc-user",
		"latitude":  10.0,
		"longitude": 20.0,
		"displayName": "Locke",
		"currentlyPlaying": map[string]string{
			"name":   "Song",
			"artist": "Band",
		},
	})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rec models.PresenceRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	require.Equal(t, "loc-user", rec.ID)
	require.Equal(t, models.PresenceStatusLive, rec.Status)
	require.False(t, rec.LastUpdated.IsZero())

	// Missing coordinates are rejected.
	bad := postJSON(t, testBaseURL+"/api/locations", map[string]any{"id": "loc-user"})
	_ = bad.Body.Close()
	require.Equal(t, http.StatusBadRequest, bad.StatusCode)

	// The roster contains the record.
	listResp, err := http.Get(testBaseURL + "/api/locations")
	require.NoError(t, err)
	defer func() { _ = listResp.Body.Close() }()
	var records []models.PresenceRecord
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&records))
	require.Len(t, records, 1)

	// Delete removes it; a second delete is a 404.
	req, _ := http.NewRequest(http.MethodDelete, testBaseURL+"/api/locations/loc-user", nil)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = delResp.Body.Close()
	require.Equal(t, http.StatusOK, delResp.StatusCode)

	delResp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = delResp2.Body.Close()
	require.Equal(t, http.StatusNotFound, delResp2.StatusCode)
}

func testPresenceStream(t *testing.T) {
	resp := postJSON(t, testBaseURL+"/api/locations", map[string]any{
		"id":        "stream-user",
		"latitude":  48.2,
		"longitude": 16.3,
	})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testBaseURL+"/api/presence/stream", nil)
	require.NoError(t, err)
	streamResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = streamResp.Body.Close() }()
	require.Equal(t, "text/event-stream", streamResp.Header.Get("Content-Type"))

	// A new subscriber immediately receives the current snapshot.
	scanner := bufio.NewScanner(streamResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var records []models.PresenceRecord
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &records))
		found := false
		for _, rec := range records {
			if rec.ID == "stream-user" {
				found = true
			}
		}
		require.True(t, found, "snapshot should contain stream-user")
		return
	}
	t.Fatal("no snapshot event received")
}

func registerSession(t *testing.T, token, userID, name string) {
	t.Helper()
	resp := postJSON(t, testBaseURL+"/api/sessions", map[string]string{
		"token":       token,
		"userId":      userID,
		"displayName": name,
	})
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func startClient(t *testing.T, ctx context.Context, token, userID, name string) *client.Manager {
	t.Helper()
	m := client.NewManager(client.Config{
		URL: testWSURL,
		Credentials: client.Credentials{
			UserID:      userID,
			DisplayName: name,
			Token:       token,
		},
	})
	go func() { _ = m.Run(ctx) }()
	waitClientEvent(t, m, func(ev client.Event) bool {
		return ev.Kind == client.EventStateChange && ev.State == client.StateConnected
	})
	return m
}

func waitClientEvent(t *testing.T, m *client.Manager, match func(client.Event) bool) client.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-m.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timeout waiting for client event")
			return client.Event{}
		}
	}
}

func testChatEndToEnd(t *testing.T) {
	registerSession(t, "tok-a", "user-a", "Alice")
	registerSession(t, "tok-b", "user-b", "Bob")

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelB()

	alice := startClient(t, ctxA, "tok-a", "user-a", "Alice")
	bob := startClient(t, ctxB, "tok-b", "user-b", "Bob")

	// Roster updates are only delivered to joined sessions, so seeing both
	// names means the server has processed both joins.
	bothJoined := func(ev client.Event) bool {
		return ev.Kind == client.EventRoster && len(ev.Users) == 2
	}
	waitClientEvent(t, alice, bothJoined)
	waitClientEvent(t, bob, bothJoined)

	// Unauthenticated upgrade is refused outright.
	resp, err := http.Get(fmt.Sprintf("%s/api/chat", testBaseURL))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	alice.Send("hello")

	isHello := func(ev client.Event) bool {
		return ev.Kind == client.EventMessage && !ev.Message.IsSystem && ev.Message.Content == "hello"
	}
	forBob := waitClientEvent(t, bob, isHello)
	forAlice := waitClientEvent(t, alice, isHello)

	// The server copy is authoritative: sender and peer converge on the
	// exact same message.
	require.Equal(t, "user-a", forBob.Message.SenderID)
	require.Equal(t, forAlice.Message.ID, forBob.Message.ID)

	// Bob disconnects; Alice's roster shrinks to just her.
	cancelB()
	ev := waitClientEvent(t, alice, func(ev client.Event) bool {
		return ev.Kind == client.EventRoster && len(ev.Users) == 1
	})
	require.Equal(t, []string{"Alice"}, ev.Users)
}
