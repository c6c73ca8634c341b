package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusleung/memecast/internal/domain"
)

// startMirror runs a RoomMirror over the env's fake bus and waits for its
// subscription to land.
func startMirror(t *testing.T, env *testEnv) (context.CancelFunc, <-chan error) {
	t.Helper()
	mirror := NewRoomMirror(env.bus, env.broadcast, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mirror.Run(ctx) }()

	require.Eventually(t, func() bool {
		return env.bus.subscribed(domain.RoomChannelPattern)
	}, time.Second, 5*time.Millisecond)
	return cancel, done
}

func TestRoomMirrorRebroadcastsPeerFrames(t *testing.T) {
	env := newTestEnv()
	cancel, done := startMirror(t, env)
	defer cancel()

	frame, err := json.Marshal(mirrorFrame{
		Origin:   "peer-instance",
		MarketID: "m1",
		Event:    domain.EvMarketUpdate,
		Data:     json.RawMessage(`{"pool_balance":1}`),
	})
	require.NoError(t, err)
	env.bus.push(domain.RoomChannelPattern, frame)

	require.Eventually(t, func() bool {
		return len(env.broadcast.events("m1")) == 1
	}, time.Second, 5*time.Millisecond)
	got := env.broadcast.events("m1")[0]
	assert.Equal(t, domain.EvMarketUpdate, got.Event)
	assert.JSONEq(t, `{"pool_balance":1}`, string(got.Data.(json.RawMessage)))

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRoomMirrorSkipsOwnAndMalformedFrames(t *testing.T) {
	env := newTestEnv()
	cancel, _ := startMirror(t, env)
	defer cancel()

	own, err := json.Marshal(mirrorFrame{
		Origin:   instanceID,
		MarketID: "m1",
		Event:    domain.EvMarketUpdate,
	})
	require.NoError(t, err)
	peer, err := json.Marshal(mirrorFrame{
		Origin:   "peer-instance",
		MarketID: "m1",
		Event:    domain.EvMarketEnded,
	})
	require.NoError(t, err)

	// Frames are consumed in order, so once the peer frame lands we know the
	// two before it were dropped.
	env.bus.push(domain.RoomChannelPattern, []byte("not json"))
	env.bus.push(domain.RoomChannelPattern, own)
	env.bus.push(domain.RoomChannelPattern, peer)

	require.Eventually(t, func() bool {
		return len(env.broadcast.events("m1")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.EvMarketEnded, env.broadcast.events("m1")[0].Event)
}

func TestPublishMirrorFrameCarriesOrigin(t *testing.T) {
	env := newTestEnv()

	PublishMirror(context.Background(), env.bus, testLogger(), "m1", domain.EvMarketUpdate, map[string]int{"seq": 1})

	msgs := env.bus.messages[domain.RoomChannel("m1")]
	require.Len(t, msgs, 1)

	var f mirrorFrame
	require.NoError(t, json.Unmarshal(msgs[0], &f))
	assert.Equal(t, instanceID, f.Origin)
	assert.Equal(t, "m1", f.MarketID)
	assert.Equal(t, domain.EvMarketUpdate, f.Event)
	assert.JSONEq(t, `{"seq":1}`, string(f.Data))
}
