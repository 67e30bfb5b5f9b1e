package websocket

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize bounds inbound frames when no limit is configured.
	DefaultMaxMessageSize = 8192
)

// Client is one authenticated websocket session.
type Client struct {
	Registry *Registry
	Router   *Router

	// The user ID this client represents.
	UserID uuid.UUID

	// The websocket connection.
	Conn *websocket.Conn

	// Outbound frames for this session.
	Outbox *Outbox

	MaxMessageSize int64
	Logger         *slog.Logger
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default().With("user_id", c.UserID)
	}
	return c.Logger
}

// Serve registers the session, runs WritePump in the background and
// ReadPump on the calling goroutine until the session ends.
func (c *Client) Serve(ctx context.Context) {
	c.Registry.Register(c.UserID, c.Outbox)
	go c.WritePump()
	c.ReadPump(ctx)
}

// ReadPump routes frames from the connection in arrival order. It returns
// on a read error, a protocol violation, or when the outbox is closed by a
// newer session.
func (c *Client) ReadPump(ctx context.Context) {
	log := c.logger()
	defer func() {
		c.Registry.Release(c.UserID, c.Outbox)
		c.Outbox.Close()
		log.Debug("ReadPump stopped")
	}()

	limit := c.MaxMessageSize
	if limit <= 0 {
		limit = DefaultMaxMessageSize
	}
	c.Conn.SetReadLimit(limit)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	sender := Sender{ID: c.UserID, Outbox: c.Outbox}
	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", "error", err)
			}
			return
		}
		if c.Outbox.Closed() {
			log.Info("session closed while reading")
			return
		}
		if messageType != websocket.TextMessage {
			log.Warn("dropping non-text frame", "type", messageType)
			continue
		}

		if err := c.Router.HandleRaw(ctx, sender, message); err != nil {
			if errors.Is(err, ErrProtocolViolation) {
				log.Warn("closing session", "error", err)
				// WriteControl is safe alongside WritePump.
				c.Conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "protocol violation"),
					time.Now().Add(writeWait))
				return
			}
			log.Error("routing failed", "error", err)
		}
	}
}

// WritePump drains the outbox to the connection and keeps it alive with
// pings. It exits once the outbox is closed and emptied.
func (c *Client) WritePump() {
	log := c.logger()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		log.Debug("WritePump stopped")
	}()
	for {
		select {
		case <-c.Outbox.Ready():
			if err := c.writeQueued(); err != nil {
				log.Warn("websocket write error", "error", err)
				c.Outbox.Close()
				return
			}
		case <-c.Outbox.Done():
			// Flush what the session queued before it ended.
			_ = c.writeQueued()
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Warn("websocket ping error", "error", err)
				c.Outbox.Close()
				return
			}
		}
	}
}

func (c *Client) writeQueued() error {
	for _, frame := range c.Outbox.Drain() {
		c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}
