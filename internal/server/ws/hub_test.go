package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusleung/memecast/internal/domain"
)

// testEnv runs a hub behind an httptest server with a minimal set of event
// handlers, so tests exercise the real read/write pumps over real
// connections.
type testEnv struct {
	hub *Hub
	srv *httptest.Server

	mu      sync.Mutex
	offline []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(logger)
	hub := NewHub(router, logger)
	env := &testEnv{hub: hub}

	hub.SetOfflineHook(func(wallet string) {
		env.mu.Lock()
		defer env.mu.Unlock()
		env.offline = append(env.offline, wallet)
	})

	router.Handle("auth", func(_ context.Context, c *Client, data json.RawMessage) (any, error) {
		var req struct {
			Wallet string `json:"wallet"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		hub.Authenticate(c, req.Wallet)
		return map[string]string{"wallet": req.Wallet}, nil
	})
	router.Handle("join", func(_ context.Context, c *Client, data json.RawMessage) (any, error) {
		var req struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, err
		}
		hub.JoinRoom(c, req.Room)
		return map[string]string{"room": req.Room}, nil
	})
	router.Handle("echo", func(_ context.Context, _ *Client, data json.RawMessage) (any, error) {
		return data, nil
	})
	router.Handle("fail", func(_ context.Context, _ *Client, _ json.RawMessage) (any, error) {
		return nil, fmt.Errorf("no such thing: %w", domain.ErrNotFound)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	env.srv = srv
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return env
}

func (env *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (env *testEnv) offlineWallets() []string {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]string(nil), env.offline...)
}

func sendEvent(t *testing.T, conn *websocket.Conn, id uint64, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{ID: id, Event: event, Data: payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// frame is the union of ack and push shapes read off a test connection.
type frame struct {
	ID    uint64          `json:"id"`
	OK    bool            `json:"ok"`
	Error string          `json:"error"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

// authAs dials, authenticates and waits for the ack.
func (env *testEnv) authAs(t *testing.T, wallet string) *websocket.Conn {
	t.Helper()
	conn := env.dial(t)
	sendEvent(t, conn, 1, "auth", map[string]string{"wallet": wallet})
	ack := readFrame(t, conn)
	require.True(t, ack.OK)
	return conn
}

func TestAckCarriesHandlerResult(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, 7, "echo", map[string]string{"ping": "pong"})
	ack := readFrame(t, conn)

	assert.Equal(t, uint64(7), ack.ID)
	assert.True(t, ack.OK)
	assert.JSONEq(t, `{"ping":"pong"}`, string(ack.Data))
}

func TestAckMapsErrorsToStableStrings(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, 3, "fail", map[string]string{})
	ack := readFrame(t, conn)

	assert.Equal(t, uint64(3), ack.ID)
	assert.False(t, ack.OK)
	assert.Equal(t, "not_found", ack.Error)
}

func TestUnknownEventAcksError(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	sendEvent(t, conn, 5, "no_such_event", map[string]string{})
	ack := readFrame(t, conn)

	assert.Equal(t, uint64(5), ack.ID)
	assert.False(t, ack.OK)
	assert.Contains(t, ack.Error, "unknown event")
}

func TestZeroIDSuppressesAck(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)

	// The id-0 echo produces no ack, so the next frame read belongs to the
	// id-9 echo.
	sendEvent(t, conn, 0, "echo", map[string]string{"n": "first"})
	sendEvent(t, conn, 9, "echo", map[string]string{"n": "second"})

	ack := readFrame(t, conn)
	assert.Equal(t, uint64(9), ack.ID)
	assert.JSONEq(t, `{"n":"second"}`, string(ack.Data))
}

func TestBroadcastRoomReachesOnlyMembers(t *testing.T) {
	env := newTestEnv(t)

	member := env.dial(t)
	sendEvent(t, member, 1, "join", map[string]string{"room": "m1"})
	readFrame(t, member)

	outsider := env.dial(t)
	sendEvent(t, outsider, 1, "join", map[string]string{"room": "m2"})
	readFrame(t, outsider)

	env.hub.BroadcastRoom("m1", "market_update", map[string]string{"market_id": "m1"})

	push := readFrame(t, member)
	assert.Equal(t, "market_update", push.Event)
	assert.Zero(t, push.ID)

	// The outsider sees nothing: the next thing it receives is its own ack.
	sendEvent(t, outsider, 2, "echo", map[string]string{})
	next := readFrame(t, outsider)
	assert.Equal(t, uint64(2), next.ID)
}

func TestBroadcastOrderIsPreserved(t *testing.T) {
	env := newTestEnv(t)

	conn := env.dial(t)
	sendEvent(t, conn, 1, "join", map[string]string{"room": "m1"})
	readFrame(t, conn)

	for i := 0; i < 10; i++ {
		env.hub.BroadcastRoom("m1", "market_update", map[string]int{"seq": i})
	}

	for i := 0; i < 10; i++ {
		push := readFrame(t, conn)
		var data struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(push.Data, &data))
		assert.Equal(t, i, data.Seq)
	}
}

func TestSendToWallet(t *testing.T) {
	env := newTestEnv(t)
	conn := env.authAs(t, "0xalice")

	assert.True(t, env.hub.SendToWallet("0xalice", "join_accepted", map[string]string{"market_id": "m1"}))
	push := readFrame(t, conn)
	assert.Equal(t, "join_accepted", push.Event)

	// Absent wallet: silent drop, reported as false.
	assert.False(t, env.hub.SendToWallet("0xghost", "join_accepted", nil))
}

func TestLastConnectionWins(t *testing.T) {
	env := newTestEnv(t)

	first := env.authAs(t, "0xalice")
	second := env.authAs(t, "0xalice")

	// The evicted connection gets closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	// Targeted delivery lands on the survivor.
	assert.True(t, env.hub.SendToWallet("0xalice", "join_accepted", nil))
	push := readFrame(t, second)
	assert.Equal(t, "join_accepted", push.Event)

	// Eviction is not a disconnect of the wallet.
	assert.Empty(t, env.offlineWallets())
}

func TestDisconnectNotifiesRoomsAndHook(t *testing.T) {
	env := newTestEnv(t)

	watcher := env.dial(t)
	sendEvent(t, watcher, 1, "join", map[string]string{"room": "m1"})
	readFrame(t, watcher)

	leaver := env.authAs(t, "0xbob")
	sendEvent(t, leaver, 2, "join", map[string]string{"room": "m1"})
	readFrame(t, leaver)

	require.NoError(t, leaver.Close())

	push := readFrame(t, watcher)
	assert.Equal(t, domain.EvPresenceOffline, push.Event)
	var data struct {
		Wallet string `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(push.Data, &data))
	assert.Equal(t, "0xbob", data.Wallet)

	require.Eventually(t, func() bool {
		wallets := env.offlineWallets()
		return len(wallets) == 1 && wallets[0] == "0xbob"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoomSizeTracksJoins(t *testing.T) {
	env := newTestEnv(t)

	a := env.dial(t)
	sendEvent(t, a, 1, "join", map[string]string{"room": "m1"})
	readFrame(t, a)
	// A second join from the same connection is a no-op.
	sendEvent(t, a, 2, "join", map[string]string{"room": "m1"})
	readFrame(t, a)

	b := env.dial(t)
	sendEvent(t, b, 1, "join", map[string]string{"room": "m1"})
	readFrame(t, b)

	assert.Equal(t, 2, env.hub.RoomSize("m1"))

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool {
		return env.hub.RoomSize("m1") == 1
	}, 2*time.Second, 10*time.Millisecond)
}
