package models

import "encoding/json"

// Wire protocol: every frame is {"event": ..., "data": ...}.

type ClientEvent string

const (
	ClientEventJoin    ClientEvent = "join"
	ClientEventMessage ClientEvent = "message"
	ClientEventTyping  ClientEvent = "typing"
)

type ServerEvent string

const (
	ServerEventHistory       ServerEvent = "history"
	ServerEventGlobalMessage ServerEvent = "globalMessage"
	ServerEventDirectMessage ServerEvent = "directMessage"
	ServerEventActiveUsers   ServerEvent = "active_users"
	ServerEventTypingUpdate  ServerEvent = "typingUpdate"
)

// ClientFrame is an inbound frame from a client. Data is decoded per event
// type; an undecodable frame is dropped by the gateway, never fatal.
type ClientFrame struct {
	Event ClientEvent     `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerFrame is an outbound frame to a client.
type ServerFrame struct {
	Event ServerEvent `json:"event"`
	Data  any         `json:"data"`
}

type JoinData struct {
	Username string `json:"username"`
}

type MessageData struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	// RecipientID selects a direct room; empty means RoomGlobal.
	RecipientID string `json:"recipientId,omitempty"`
}

type TypingUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type TypingData struct {
	IsTyping bool       `json:"isTyping"`
	User     TypingUser `json:"user"`
	// RecipientID selects a direct room; empty means RoomGlobal.
	RecipientID string `json:"recipientId,omitempty"`
}

type TypingUpdateData struct {
	Users []string `json:"users"`
}
