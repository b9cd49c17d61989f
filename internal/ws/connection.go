package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"wavelength/internal/auth"
	"wavelength/internal/models"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadMessage() (int, []byte, error)
}

type gatewayHub interface {
	Register() *Session
	Join(s *Session, id auth.Identity, data models.JoinData)
	Dispatch(s *Session, data models.MessageData)
	SetTyping(s *Session, data models.TypingData)
	Leave(s *Session)
}

// Connection owns one socket: a reader goroutine feeds inbound frames into
// a channel, and a single dispatch loop serializes them with outbound
// frames from the hub. Malformed frames are dropped without closing the
// socket.
type Connection struct {
	ws         wsConnection
	hub        gatewayHub
	identity   auth.Identity
	session    *Session
	fromClient chan models.ClientFrame
	errorCh    chan error
}

func NewConnection(
	hub gatewayHub,
	ws wsConnection,
	identity auth.Identity,
) *Connection {
	return &Connection{
		ws:         ws,
		hub:        hub,
		identity:   identity,
		session:    hub.Register(),
		fromClient: make(chan models.ClientFrame),
		errorCh:    make(chan error, 2),
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		c.hub.Leave(c.session)
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpFrames(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpFrames(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("dropping malformed frame", "user_id", c.identity.UserID, "error", err)
			continue
		}

		select {
		case c.fromClient <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	for {
		select {
		case frame := <-c.fromClient:
			c.processClientFrame(frame)
		case frame, ok := <-c.session.Frames():
			if !ok {
				// Pruned by the hub.
				return nil
			}
			if err := c.ws.WriteJSON(frame); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientFrame(frame models.ClientFrame) {
	switch frame.Event {
	case models.ClientEventJoin:
		var data models.JoinData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			slog.Warn("dropping malformed join", "user_id", c.identity.UserID, "error", err)
			return
		}
		c.hub.Join(c.session, c.identity, data)

	case models.ClientEventMessage:
		var data models.MessageData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			slog.Warn("dropping malformed message", "user_id", c.identity.UserID, "error", err)
			return
		}
		c.hub.Dispatch(c.session, data)

	case models.ClientEventTyping:
		var data models.TypingData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			slog.Warn("dropping malformed typing event", "user_id", c.identity.UserID, "error", err)
			return
		}
		c.hub.SetTyping(c.session, data)

	default:
		slog.Warn("dropping frame with unknown event", "event", frame.Event)
	}
}
