package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/view"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var (
	errClientClosed = errors.New("client is closed")
	errClientSlow   = errors.New("client send buffer is full")
)

// client is one connection of a browser session.
type client struct {
	logger    *slog.Logger
	conn      *websocket.Conn
	sessionID string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newClient(logger *slog.Logger, conn *websocket.Conn, sessionID string) *client {
	return &client{
		logger:    logger.With("sessionID", sessionID),
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, sendBufferSize),
	}
}

// pushState is the session listener of the connection. A client that cannot keep up is
// closed so the browser reconnects and asks for the current state.
func (that *client) pushState(state view.State) {
	err := that.sendMessage(actionMatchState, state)
	if errors.Is(err, errClientSlow) {
		that.logger.Warn("client too slow, closing connection")
		that.close()
		return
	}

	if err != nil {
		that.logger.Warn("failed to push state", "error", err)
	}
}

func (that *client) sendMessage(action string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	messageBytes, err := json.Marshal(Message{Action: action, Payload: payloadBytes})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return errClientClosed
	}

	select {
	case that.send <- messageBytes:
		return nil
	default:
		return errClientSlow
	}
}

func (that *client) sendError(action string, err error) {
	if sendErr := that.sendMessage(actionError, ErrorPayload{Action: action, Error: err.Error()}); sendErr != nil {
		that.logger.Warn("failed to send error", "error", sendErr)
	}
}

func (that *client) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.closed {
		that.closed = true
		close(that.send)
	}
}

// readPump delivers every message to handle until the connection fails.
func (that *client) readPump(handle func(message *Message)) {
	that.conn.SetReadLimit(maxMessageSize)
	_ = that.conn.SetReadDeadline(time.Now().Add(pongWait))
	that.conn.SetPongHandler(func(string) error {
		return that.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := that.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				that.logger.Error("error reading message", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			that.sendError("", fmt.Errorf("%w: %v", apperror.ErrPayloadMalformed, err))
			continue
		}

		handle(&message)
	}
}

func (that *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = that.conn.Close()
	}()

	for {
		select {
		case message, ok := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = that.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := that.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				that.logger.Error("failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
