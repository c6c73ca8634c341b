// Package ws implements the WebSocket transport: the connection hub with its
// presence registry and market rooms, the event router, and the ack-capable
// wire protocol.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/marcusleung/memecast/internal/domain"
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// OfflineFunc is invoked after a wallet's connection is removed from the
// presence registry, so stream sessions can be torn down.
type OfflineFunc func(wallet string)

// Hub owns every live connection, the wallet presence registry, and the
// per-market rooms. All three tables share one RWMutex; access patterns are
// read-heavy fan-out with short critical sections, so map-level locking is
// sufficient.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	presence map[string]*Client
	rooms    map[string]map[*Client]bool
	// roomsOf mirrors rooms per client for O(membership) cleanup on
	// disconnect.
	roomsOf map[*Client]map[string]bool

	router    *Router
	logger    *slog.Logger
	onOffline OfflineFunc
	baseCtx   context.Context
}

// NewHub creates a Hub dispatching inbound events through router.
func NewHub(router *Router, logger *slog.Logger) *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		presence: make(map[string]*Client),
		rooms:    make(map[string]map[*Client]bool),
		roomsOf:  make(map[*Client]map[string]bool),
		router:   router,
		logger:   logger,
		baseCtx:  context.Background(),
	}
}

// SetOfflineHook registers the disconnect hook. Must be called during
// wiring, before the hub accepts connections.
func (h *Hub) SetOfflineHook(fn OfflineFunc) {
	h.onOffline = fn
}

// context returns the base context handlers run under.
func (h *Hub) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.baseCtx
}

// Run blocks until ctx is cancelled, then closes every connection. Handlers
// dispatched after Run starts use ctx as their base context.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	h.baseCtx = ctx
	h.mu.Unlock()

	<-ctx.Done()

	h.mu.Lock()
	for c := range h.clients {
		c.markClosed()
		delete(h.clients, c)
	}
	h.presence = make(map[string]*Client)
	h.rooms = make(map[string]map[*Client]bool)
	h.roomsOf = make(map[*Client]map[string]bool)
	h.mu.Unlock()

	return ctx.Err()
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("ws: client connected", slog.Int("total_clients", total))

	go c.writePump()
	go c.readPump()
}

// Authenticate binds a wallet to the connection. The last connection for a
// wallet wins: an earlier connection for the same wallet is evicted.
func (h *Hub) Authenticate(c *Client, wallet string) {
	var evicted *Client

	h.mu.Lock()
	if prev, ok := h.presence[wallet]; ok && prev != c {
		evicted = prev
		h.detachLocked(prev)
	}
	h.presence[wallet] = c
	h.mu.Unlock()

	c.setWallet(wallet)

	if evicted != nil {
		evicted.conn.Close()
		h.logger.Info("ws: evicted previous connection",
			slog.String("wallet", wallet),
		)
	}
}

// JoinRoom adds the connection to a market room. Joining twice is a no-op.
func (h *Hub) JoinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[c] = true

	joined, ok := h.roomsOf[c]
	if !ok {
		joined = make(map[string]bool)
		h.roomsOf[c] = joined
	}
	joined[room] = true
}

// LeaveRoom removes the connection from a market room.
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(c, room)
}

func (h *Hub) leaveRoomLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined, ok := h.roomsOf[c]; ok {
		delete(joined, room)
	}
}

// BroadcastRoom delivers an event to every member of room. Fire-and-forget:
// frames to slow clients are dropped, nothing is retried or persisted.
func (h *Hub) BroadcastRoom(room, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("ws: encode broadcast", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		c.enqueue(frame)
	}
}

// BroadcastAll delivers an event to every connected client.
func (h *Hub) BroadcastAll(event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("ws: encode broadcast", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(frame)
	}
}

// SendToWallet delivers an event to the wallet's connection. A missing
// presence entry is an expected race with disconnect, not an error; the
// frame is silently dropped and false returned.
func (h *Hub) SendToWallet(wallet, event string, data any) bool {
	h.mu.RLock()
	c, ok := h.presence[wallet]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	frame, err := encodeEvent(event, data)
	if err != nil {
		h.logger.Error("ws: encode send", slog.String("event", event), slog.String("error", err.Error()))
		return false
	}
	c.enqueue(frame)
	return true
}

// RoomSize returns the number of connections joined to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// remove drops the connection from every table, notifies its rooms that the
// wallet went offline, and fires the offline hook.
func (h *Hub) remove(c *Client) {
	wallet := c.Wallet()

	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	rooms := make([]string, 0, len(h.roomsOf[c]))
	for room := range h.roomsOf[c] {
		rooms = append(rooms, room)
	}
	h.detachLocked(c)
	h.mu.Unlock()

	if wallet != "" {
		for _, room := range rooms {
			h.BroadcastRoom(room, domain.EvPresenceOffline, map[string]string{"wallet": wallet})
		}
		if h.onOffline != nil {
			h.onOffline(wallet)
		}
	}

	h.logger.Info("ws: client disconnected", slog.String("wallet", wallet))
}

// detachLocked removes c from all hub tables. Caller holds h.mu.
func (h *Hub) detachLocked(c *Client) {
	delete(h.clients, c)
	for room := range h.roomsOf[c] {
		h.leaveRoomLocked(c, room)
	}
	delete(h.roomsOf, c)

	wallet := c.Wallet()
	if wallet != "" && h.presence[wallet] == c {
		delete(h.presence, wallet)
	}
	c.markClosed()
}

// Compile-time interface check.
var _ domain.Broadcaster = (*Hub)(nil)
