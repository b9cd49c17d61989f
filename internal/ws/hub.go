package ws

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"wavelength/internal/auth"
	"wavelength/internal/content"
	"wavelength/internal/models"

	"github.com/google/uuid"
)

const (
	historyLimit  = 100
	sessionBuffer = 100
)

type historyStore interface {
	AppendMessage(msg models.ChatMessage) error
	RecentMessages(roomID string, limit int) ([]models.ChatMessage, error)
}

type pushNotifier interface {
	NotifyDirectMessage(userID string, msg models.ChatMessage)
}

// Session is one live socket. Its user id is set at most once, when the
// join frame arrives; until then only join frames are accepted. All fields
// past the channel are guarded by the hub mutex.
type Session struct {
	id  string
	out chan models.ServerFrame

	userID    string
	username  string
	avatarURL string
	rooms     map[string]bool
	lastSeen  time.Time
	closed    bool
}

// Frames is the outbound channel for this session. It is closed when the
// session leaves the hub or is pruned as unresponsive.
func (s *Session) Frames() <-chan models.ServerFrame {
	return s.out
}

func (s *Session) joined() bool {
	return s.userID != ""
}

// Hub is the chat gateway registry: every live session, who it belongs to,
// which rooms it is in, and who is currently typing where. All mutation
// goes through the single mutex, so concurrent joins, messages, and closes
// for the same user or room cannot interleave partially.
type Hub struct {
	history historyStore
	push    pushNotifier

	mu           sync.Mutex
	sessions     map[string]*Session
	userSessions map[string]map[string]*Session
	rooms        map[string]map[string]*Session
	typers       map[string]map[string]string // room -> userID -> display name

	now func() time.Time
}

func NewHub(history historyStore, push pushNotifier) *Hub {
	return &Hub{
		history:      history,
		push:         push,
		sessions:     make(map[string]*Session),
		userSessions: make(map[string]map[string]*Session),
		rooms:        make(map[string]map[string]*Session),
		typers:       make(map[string]map[string]string),
		now:          time.Now,
	}
}

// Register creates a session for a freshly accepted socket. The session is
// unauthenticated until Join.
func (h *Hub) Register() *Session {
	s := &Session{
		id:    uuid.NewString(),
		out:   make(chan models.ServerFrame, sessionBuffer),
		rooms: make(map[string]bool),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	s.lastSeen = h.now()
	h.sessions[s.id] = s
	return s
}

// Join binds the session to a user and puts it in the global room. The
// session receives recent history; everyone receives the new roster. A
// second join on the same session is ignored.
func (h *Hub) Join(s *Session, id auth.Identity, data models.JoinData) {
	// A nickname override must stay within the handle charset; anything
	// else falls back to the registered display name.
	username := content.Sanitize(data.Username)
	if username == "" || content.ValidateUsername(username) != nil {
		username = id.DisplayName
	}

	// History read stays outside the lock.
	history, err := h.history.RecentMessages(models.RoomGlobal, historyLimit)
	if err != nil {
		slog.Warn("failed to load chat history", "error", err)
		history = nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed || s.joined() {
		return
	}

	s.userID = id.UserID
	s.username = username
	s.avatarURL = id.AvatarURL
	s.lastSeen = h.now()

	if h.userSessions[s.userID] == nil {
		h.userSessions[s.userID] = make(map[string]*Session)
	}
	h.userSessions[s.userID][s.id] = s

	if h.rooms[models.RoomGlobal] == nil {
		h.rooms[models.RoomGlobal] = make(map[string]*Session)
	}
	h.rooms[models.RoomGlobal][s.id] = s
	s.rooms[models.RoomGlobal] = true

	if history == nil {
		history = []models.ChatMessage{}
	}
	h.deliver(s, models.ServerFrame{Event: models.ServerEventHistory, Data: history})
	h.broadcastRoster()
}

// Dispatch routes one message frame. Messages before join are rejected as a
// no-op; the connection stays open.
func (h *Hub) Dispatch(s *Session, data models.MessageData) {
	h.mu.Lock()

	if s.closed || !s.joined() {
		h.mu.Unlock()
		slog.Warn("dropping message from session that has not joined")
		return
	}

	body := content.FilterProfanity(content.Sanitize(data.Content))
	msg := models.ChatMessage{
		ID:        data.ID,
		SenderID:  s.userID,
		Username:  s.username,
		AvatarURL: s.avatarURL,
		Content:   body,
		IsGIF:     content.IsGIFURL(body),
		Timestamp: h.now().Unix(),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	s.lastSeen = h.now()

	var offlinePeer string
	if data.RecipientID == "" {
		msg.Room = models.RoomGlobal
		h.deliverGlobal(msg)
	} else {
		msg.Room = data.RecipientID
		offlinePeer = h.deliverDirect(s, data.RecipientID, msg)
	}
	h.mu.Unlock()

	if err := h.history.AppendMessage(storageRoom(s.userID, msg)); err != nil {
		slog.Warn("failed to persist message", "message_id", msg.ID, "error", err)
	}
	if offlinePeer != "" && h.push != nil {
		go h.push.NotifyDirectMessage(offlinePeer, msg)
	}
}

// deliverGlobal sends msg to every session in the global room, including
// the sender's. The server copy is the authoritative one; clients do not
// echo locally.
func (h *Hub) deliverGlobal(msg models.ChatMessage) {
	frame := models.ServerFrame{Event: models.ServerEventGlobalMessage, Data: msg}
	for _, member := range h.rooms[models.RoomGlobal] {
		h.deliver(member, frame)
	}
}

// deliverDirect sends msg to every session of the peer and to the sender's
// other sessions. It returns the peer's user id when the peer has no live
// session, so the caller can fall back to a push notification.
func (h *Hub) deliverDirect(sender *Session, peerID string, msg models.ChatMessage) string {
	frame := models.ServerFrame{Event: models.ServerEventDirectMessage, Data: msg}

	peerSessions := h.userSessions[peerID]
	for _, peer := range peerSessions {
		h.deliver(peer, frame)
	}
	for _, own := range h.userSessions[sender.userID] {
		if own.id == sender.id {
			continue
		}
		h.deliver(own, frame)
	}

	if len(peerSessions) == 0 {
		return peerID
	}
	return ""
}

// SetTyping updates the room's typer set and pushes the recomputed list to
// every other session in the room. Each recipient's list never contains the
// recipient, and nothing is pushed for rooms the typer has not joined.
func (h *Hub) SetTyping(s *Session, data models.TypingData) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s.closed || !s.joined() {
		return
	}
	s.lastSeen = h.now()

	if data.RecipientID != "" {
		h.setDirectTyping(s, data)
		return
	}

	if !s.rooms[models.RoomGlobal] {
		return
	}

	h.updateTypers(models.RoomGlobal, s.userID, s.username, data.IsTyping)
	h.pushTypingUpdate(models.RoomGlobal, s)
}

func (h *Hub) setDirectTyping(s *Session, data models.TypingData) {
	room := DirectRoomID(s.userID, data.RecipientID)
	h.updateTypers(room, s.userID, s.username, data.IsTyping)

	users := h.typerNames(room, data.RecipientID)
	frame := models.ServerFrame{Event: models.ServerEventTypingUpdate, Data: models.TypingUpdateData{Users: users}}
	for _, peer := range h.userSessions[data.RecipientID] {
		h.deliver(peer, frame)
	}
}

// Leave removes a session from every room and typer set and closes its
// outbound channel. When this was the user's last session the roster shrinks
// and everyone hears about it. Safe to call more than once.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s)
}

func (h *Hub) leaveLocked(s *Session) {
	if s.closed {
		return
	}
	s.closed = true
	delete(h.sessions, s.id)
	close(s.out)

	if !s.joined() {
		return
	}

	for room := range s.rooms {
		delete(h.rooms[room], s.id)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}

	if own := h.userSessions[s.userID]; own != nil {
		delete(own, s.id)
		if len(own) == 0 {
			delete(h.userSessions, s.userID)
		}
	}

	// A closed socket stops typing too.
	lastSession := h.userSessions[s.userID] == nil
	if lastSession {
		for room, typers := range h.typers {
			if _, ok := typers[s.userID]; ok {
				h.updateTypers(room, s.userID, s.username, false)
				h.pushTypingUpdate(room, s)
			}
		}
		h.broadcastRoster()
	}
}

// Roster returns the display names of all joined users, sorted.
func (h *Hub) Roster() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rosterLocked()
}

func (h *Hub) rosterLocked() []string {
	names := make([]string, 0, len(h.userSessions))
	for _, sessions := range h.userSessions {
		for _, s := range sessions {
			names = append(names, s.username)
			break
		}
	}
	sort.Strings(names)
	return names
}

func (h *Hub) broadcastRoster() {
	frame := models.ServerFrame{Event: models.ServerEventActiveUsers, Data: h.rosterLocked()}
	for _, s := range h.sessions {
		if s.joined() {
			h.deliver(s, frame)
		}
	}
}

func (h *Hub) updateTypers(room, userID, username string, isTyping bool) {
	if isTyping {
		if h.typers[room] == nil {
			h.typers[room] = make(map[string]string)
		}
		h.typers[room][userID] = username
		return
	}
	if typers, ok := h.typers[room]; ok {
		delete(typers, userID)
		if len(typers) == 0 {
			delete(h.typers, room)
		}
	}
}

// pushTypingUpdate sends each room member its own view of the typer list.
// The origin session is skipped and no recipient ever sees themselves.
func (h *Hub) pushTypingUpdate(room string, origin *Session) {
	for _, member := range h.rooms[room] {
		if member.id == origin.id {
			continue
		}
		users := h.typerNames(room, member.userID)
		h.deliver(member, models.ServerFrame{
			Event: models.ServerEventTypingUpdate,
			Data:  models.TypingUpdateData{Users: users},
		})
	}
}

func (h *Hub) typerNames(room, excludeUserID string) []string {
	users := make([]string, 0, len(h.typers[room]))
	for userID, name := range h.typers[room] {
		if userID == excludeUserID {
			continue
		}
		users = append(users, name)
	}
	sort.Strings(users)
	return users
}

// deliver writes a frame to one session without blocking. A session whose
// buffer is full is treated as dead and pruned; it resubscribes by
// reconnecting.
func (h *Hub) deliver(s *Session, frame models.ServerFrame) {
	select {
	case s.out <- frame:
	default:
		slog.Warn("pruning unresponsive session", "session_id", s.id, "user_id", s.userID)
		h.leaveLocked(s)
	}
}

// DirectRoomID gives the two participants of a 1:1 conversation the same
// deterministic room id.
func DirectRoomID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dm_" + a + "_" + b
}

// storageRoom rewrites a direct message's room to the pair id before it is
// persisted, so both participants read the same history.
func storageRoom(senderID string, msg models.ChatMessage) models.ChatMessage {
	if msg.Room != models.RoomGlobal {
		msg.Room = DirectRoomID(senderID, msg.Room)
	}
	return msg
}
