package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 16384

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// Client represents a single WebSocket connection. The wallet identity is
// set exactly once, when the client authenticates; handlers read it through
// Wallet and never mutate it.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	wallet string
	closed bool
}

// Wallet returns the authenticated wallet for this connection, or "" when
// the client has not authenticated yet.
func (c *Client) Wallet() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wallet
}

func (c *Client) setWallet(wallet string) {
	c.mu.Lock()
	c.wallet = wallet
	c.mu.Unlock()
}

// enqueue hands a frame to the write pump. Delivery is fire-and-forget: a
// slow client with a full buffer drops the frame. Holding the read lock
// while sending keeps markClosed from closing the channel mid-send.
func (c *Client) enqueue(frame []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.hub.logger.Warn("ws: dropping frame for slow client",
			slog.String("wallet", c.wallet),
		)
	}
}

// markClosed closes the send channel exactly once.
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads envelopes off the connection and dispatches them in order.
// Messages on one connection are handled one at a time; concurrency comes
// from other connections.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			c.hub.logger.Debug("ws: malformed frame")
			continue
		}

		if ack := c.hub.router.dispatch(c.hub.context(), c, env); ack != nil {
			frame, err := json.Marshal(ack)
			if err != nil {
				continue
			}
			c.enqueue(frame)
		}
	}
}

// writePump pumps frames from the send channel to the connection and keeps
// the connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
