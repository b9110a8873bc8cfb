package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
	"github.com/kubilitics/kubilitics-topoview/internal/service"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16 * 1024

	sendBuffer = 64
)

// Client is one websocket connection bound to a view session.
type Client struct {
	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	hub     *Hub
	session *service.Session
	limiter *rate.Limiter
	log     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	id string
}

// NewClient creates a new WebSocket client. A nil limiter accepts every input.
func NewClient(ctx context.Context, hub *Hub, conn *websocket.Conn, id string, limiter *rate.Limiter, log *slog.Logger) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     hub,
		limiter: limiter,
		log:     log.With("client_id", id),
		ctx:     clientCtx,
		cancel:  cancel,
		id:      id,
	}
}

// deliver queues a message. Droppable messages are discarded when the client
// falls behind; the next frame supersedes them.
func (c *Client) deliver(data []byte, droppable bool) {
	if droppable {
		select {
		case c.send <- data:
		case <-c.ctx.Done():
		default:
		}
		return
	}
	select {
	case c.send <- data:
	case <-c.ctx.Done():
	}
}

// Send is the session sink: it encodes messages for the write pump.
func (c *Client) Send(m service.Message) {
	data, err := json.Marshal(m)
	if err != nil {
		c.log.Error("encode message failed", "type", m.Type, "error", err)
		return
	}
	c.deliver(data, m.Type == service.MessageFrame)
}

// ReadPump pumps input events from the websocket connection to the session
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "error", err)
			}
			return
		}
		if err := c.handleMessage(message); err != nil {
			return
		}
	}
}

// handleMessage applies one input. It only fails when the session is gone.
func (c *Client) handleMessage(message []byte) error {
	var in service.Input
	if err := json.Unmarshal(message, &in); err != nil {
		c.Send(service.Message{Type: service.MessageError, Error: "invalid input: " + err.Error()})
		return nil
	}
	if c.limiter != nil {
		switch in.Type {
		case service.InputPointerMove, service.InputDragMove:
			// Moves are superseded by the next one.
			if !c.limiter.Allow() {
				return nil
			}
		default:
			if err := c.limiter.Wait(c.ctx); err != nil {
				return err
			}
		}
	}
	err := c.session.Handle(c.ctx, in)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrDestroyed), errors.Is(err, context.Canceled):
		return err
	default:
		c.Send(service.Message{Type: service.MessageError, Error: err.Error()})
		return nil
	}
}

// WritePump pumps messages to the websocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close cancels the client and its session.
func (c *Client) Close() {
	c.cancel()
}
