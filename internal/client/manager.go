package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"wavelength/internal/content"
	"wavelength/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

// MissingCredentialsMessage is surfaced to the user when the manager is
// started without a complete credential. No connection attempt is made.
const MissingCredentialsMessage = "You must be logged in to use chat."

var ErrMissingCredentials = errors.New("missing credentials")

const defaultTypingQuiet = 2 * time.Second

// Credentials is what the external login flow hands the manager. The token
// is opaque; the manager only attaches it to the upgrade request.
type Credentials struct {
	UserID      string
	DisplayName string
	Token       string
}

func (c Credentials) Validate() error {
	if c.UserID == "" || c.DisplayName == "" || c.Token == "" {
		return ErrMissingCredentials
	}
	return nil
}

type EventKind string

const (
	EventStateChange EventKind = "stateChange"
	EventHistory     EventKind = "history"
	EventMessage     EventKind = "message"
	EventRoster      EventKind = "roster"
	EventTyping      EventKind = "typing"
)

// Event is what the owning view consumes. Exactly the fields for its Kind
// are set.
type Event struct {
	Kind        EventKind
	State       State
	Err         string // user-visible, set on credential failure
	Messages    []models.ChatMessage
	Message     models.ChatMessage
	Users       []string
	TypingLabel string
}

type socket interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadMessage() (int, []byte, error)
}

type dialFunc func(ctx context.Context, url string, header http.Header) (socket, error)

func gorillaDial(ctx context.Context, url string, header http.Header) (socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Config struct {
	URL         string
	Credentials Credentials
	Policy      Policy        // zero value means DefaultPolicy
	TypingQuiet time.Duration // zero means 2s
}

// Manager owns one client connection: it dials, authenticates, retries
// with capped exponential backoff, queues at most one outbound message
// while disconnected, and debounces typing notifications. The reconnect
// timer, the typing timer, and the inbound reader all funnel through the
// manager's mutex and the Run loop, so none of them race on the pending
// slot or the retry counter.
type Manager struct {
	url    string
	creds  Credentials
	policy Policy
	quiet  time.Duration
	dial   dialFunc

	events chan Event

	mu           sync.Mutex
	state        State
	retryCount   int
	pending      string
	pendingSet   bool
	conn         socket
	typingActive bool
	typingTimer  *time.Timer

	// The socket allows one writer at a time. Send, the typing timer, and
	// the reconnect join/flush all funnel through writeFrame.
	writeMu sync.Mutex
}

func NewManager(cfg Config) *Manager {
	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy
	}
	quiet := cfg.TypingQuiet
	if quiet <= 0 {
		quiet = defaultTypingQuiet
	}
	return &Manager{
		url:    cfg.URL,
		creds:  cfg.Credentials,
		policy: policy,
		quiet:  quiet,
		dial:   gorillaDial,
		events: make(chan Event, 64),
		state:  StateDisconnected,
	}
}

// Events is the inbound event stream for the owning view.
func (m *Manager) Events() <-chan Event {
	return m.events
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run drives the connection until ctx is cancelled. Cancelling ctx is the
// deliberate disconnect: it stops the reconnect and typing timers and
// closes the socket, and no retry survives it. A missing credential fails
// fast without dialing.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.creds.Validate(); err != nil {
		m.setState(StateDisconnected, MissingCredentialsMessage)
		return err
	}

	defer m.shutdown()

	m.setState(StateConnecting, "")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := m.dial(ctx, m.url, m.authHeader())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !m.waitBackoff(ctx) {
				return ctx.Err()
			}
			continue
		}

		m.opened(conn)

		err = m.serve(ctx, conn)
		m.closeConn(conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("connection lost", "error", err)
		if !m.waitBackoff(ctx) {
			return ctx.Err()
		}
	}
}

// opened moves the manager to connected: reset the retry counter, send the
// join frame, flush the one pending message through the normal send path.
func (m *Manager) opened(conn socket) {
	m.mu.Lock()
	m.conn = conn
	m.retryCount = 0
	reconnected := m.state == StateReconnecting
	m.state = StateConnected
	pending, pendingSet := m.pending, m.pendingSet
	m.pending, m.pendingSet = "", false
	m.mu.Unlock()

	m.emit(Event{Kind: EventStateChange, State: StateConnected})
	if reconnected {
		m.emitSystem("Connected.")
	}

	if err := m.writeFrame(conn, outboundFrame{
		Event: models.ClientEventJoin,
		Data:  models.JoinData{Username: m.creds.DisplayName},
	}); err != nil {
		slog.Warn("failed to send join", "error", err)
		return
	}

	if pendingSet {
		m.transmit(conn, pending)
	}
}

// waitBackoff sleeps for the current retry delay, then bumps the counter.
// It returns false when ctx was cancelled while waiting.
func (m *Manager) waitBackoff(ctx context.Context) bool {
	m.mu.Lock()
	delay := m.policy.Delay(m.retryCount)
	m.retryCount++
	m.mu.Unlock()

	m.setState(StateReconnecting, "")
	m.emitSystem("Connection lost. Reconnecting...")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Send transmits text when the socket is open. Otherwise it overwrites the
// single pending slot; the supervising loop is already reconnecting and
// flushes the slot on the next successful open.
func (m *Manager) Send(text string) {
	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.pending = text
		m.pendingSet = true
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.transmit(conn, text)
}

func (m *Manager) transmit(conn socket, text string) {
	frame := outboundFrame{
		Event: models.ClientEventMessage,
		Data: models.MessageData{
			ID:       uuid.NewString(),
			Content:  content.FilterProfanity(text),
			Username: m.creds.DisplayName,
		},
	}
	if err := m.writeFrame(conn, frame); err != nil {
		// The reader notices the broken socket and triggers the reconnect.
		slog.Warn("failed to send message", "error", err)
	}
}

// writeFrame is the single point where outbound frames hit the socket.
func (m *Manager) writeFrame(conn socket, frame outboundFrame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// Keystroke signals the start of a typing burst on the first call and
// resets the quiet timer on every call. After the quiet period with no
// further keystrokes, typing=false is emitted (debounce, not throttle).
func (m *Manager) Keystroke() {
	m.mu.Lock()
	conn := m.conn
	start := !m.typingActive
	m.typingActive = true
	if m.typingTimer != nil {
		m.typingTimer.Stop()
	}
	m.typingTimer = time.AfterFunc(m.quiet, m.typingIdle)
	m.mu.Unlock()

	if start && conn != nil {
		m.sendTyping(conn, true)
	}
}

func (m *Manager) typingIdle() {
	m.mu.Lock()
	if !m.typingActive {
		m.mu.Unlock()
		return
	}
	m.typingActive = false
	m.typingTimer = nil
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		m.sendTyping(conn, false)
	}
}

func (m *Manager) sendTyping(conn socket, isTyping bool) {
	frame := outboundFrame{
		Event: models.ClientEventTyping,
		Data: models.TypingData{
			IsTyping: isTyping,
			User:     models.TypingUser{ID: m.creds.UserID, Name: m.creds.DisplayName},
		},
	}
	if err := m.writeFrame(conn, frame); err != nil {
		slog.Debug("failed to send typing event", "error", err)
	}
}

// serve dispatches inbound frames until the socket breaks or ctx is
// cancelled. A reader goroutine feeds a channel; this loop is the only
// consumer, so frame handling is serialized.
func (m *Manager) serve(ctx context.Context, conn socket) error {
	frames := make(chan serverFrame)
	errCh := make(chan error, 1)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			var frame serverFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				slog.Warn("dropping malformed server frame", "error", err)
				continue
			}
			select {
			case frames <- frame:
			case <-readCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frames:
			m.handleFrame(frame)
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type outboundFrame struct {
	Event models.ClientEvent `json:"event"`
	Data  any                `json:"data"`
}

type serverFrame struct {
	Event models.ServerEvent `json:"event"`
	Data  json.RawMessage    `json:"data"`
}

func (m *Manager) handleFrame(frame serverFrame) {
	switch frame.Event {
	case models.ServerEventHistory:
		var messages []models.ChatMessage
		if err := json.Unmarshal(frame.Data, &messages); err != nil {
			slog.Warn("dropping malformed history", "error", err)
			return
		}
		m.emit(Event{Kind: EventHistory, Messages: messages})

	case models.ServerEventGlobalMessage, models.ServerEventDirectMessage:
		var msg models.ChatMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			slog.Warn("dropping malformed message", "error", err)
			return
		}
		m.emit(Event{Kind: EventMessage, Message: msg})

	case models.ServerEventActiveUsers:
		var users []string
		if err := json.Unmarshal(frame.Data, &users); err != nil {
			slog.Warn("dropping malformed roster", "error", err)
			return
		}
		m.emit(Event{Kind: EventRoster, Users: users})

	case models.ServerEventTypingUpdate:
		var data models.TypingUpdateData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			slog.Warn("dropping malformed typing update", "error", err)
			return
		}
		m.emit(Event{Kind: EventTyping, Users: data.Users, TypingLabel: TypingLabel(data.Users)})

	default:
		slog.Debug("ignoring unknown server event", "event", frame.Event)
	}
}

// closeConn detaches the socket and resets the typing burst, so a burst
// that spans the disconnect re-announces itself on the first keystroke
// after reconnect instead of staying silently active.
func (m *Manager) closeConn(conn socket) {
	m.mu.Lock()
	m.conn = nil
	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	m.typingActive = false
	m.mu.Unlock()
	_ = conn.Close()
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	m.typingActive = false
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.emit(Event{Kind: EventStateChange, State: StateDisconnected})
}

func (m *Manager) authHeader() http.Header {
	header := make(http.Header)
	header.Set("token", m.creds.Token)
	return header
}

func (m *Manager) setState(state State, userErr string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.emit(Event{Kind: EventStateChange, State: state, Err: userErr})
}

// emitSystem surfaces a locally synthesized status line. It is never
// transmitted.
func (m *Manager) emitSystem(text string) {
	m.emit(Event{Kind: EventMessage, Message: models.ChatMessage{
		ID:        uuid.NewString(),
		Content:   text,
		Timestamp: time.Now().Unix(),
		IsSystem:  true,
	}})
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		slog.Debug("dropping event, consumer too slow", "kind", ev.Kind)
	}
}
