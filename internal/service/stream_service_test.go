package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcusleung/memecast/internal/domain"
)

func TestStartStreamOnlyByCreator(t *testing.T) {
	env := newTestEnv()
	view := env.createMarket("0xcreator")

	_, err := env.stream.StartStream(context.Background(), "0xother", view.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStartStreamGoesLiveAndKeepsKeyPrivate(t *testing.T) {
	env := newTestEnv()
	view := env.createMarket("0xcreator")

	info, err := env.stream.StartStream(context.Background(), "0xcreator", view.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, info.StreamKey)
	assert.Contains(t, info.PlaybackURL, view.ID)

	streamer, live := env.registry.Streamer(view.ID)
	assert.True(t, live)
	assert.Equal(t, "0xcreator", streamer)

	room := env.broadcast.events(view.ID)
	require.Len(t, room, 1)
	assert.Equal(t, domain.EvStreamUpdate, room[0].Event)
	update, ok := room[0].Data.(domain.StreamUpdate)
	require.True(t, ok)
	assert.True(t, update.IsLive)
	assert.Equal(t, info.PlaybackURL, update.PlaybackURL)

	// The room only ever sees the playback URL, never the stream key.
	detail, err := env.market.Detail(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, detail.Livestream.IsLive)
}

func TestStartStreamOnInactiveMarket(t *testing.T) {
	env := newTestEnv()
	view := env.createMarket("0xcreator")

	_, err := env.market.Cancel(context.Background(), view.ID, "0xcreator")
	require.NoError(t, err)

	_, err = env.stream.StartStream(context.Background(), "0xcreator", view.ID)
	assert.ErrorIs(t, err, domain.ErrMarketInactive)
}

func TestStopStreamClearsStateAndPeers(t *testing.T) {
	env := newTestEnv()
	view := env.createMarket("0xcreator")

	_, err := env.stream.StartStream(context.Background(), "0xcreator", view.ID)
	require.NoError(t, err)

	_, err = env.stream.ViewerJoin(context.Background(), "0xalice", view.ID)
	require.NoError(t, err)
	env.stream.TrackPeer(view.ID, "0xalice", "pc-1")

	require.NoError(t, env.stream.StopStream(context.Background(), "0xcreator", view.ID))

	_, live := env.registry.Streamer(view.ID)
	assert.False(t, live)

	detail, err := env.market.Detail(context.Background(), view.ID)
	require.NoError(t, err)
	assert.False(t, detail.Livestream.IsLive)
	assert.Empty(t, detail.Livestream.PlaybackURL)

	room := env.broadcast.events(view.ID)
	last := room[len(room)-1]
	assert.Equal(t, domain.EvStreamUpdate, last.Event)
	assert.False(t, last.Data.(domain.StreamUpdate).IsLive)
}

func TestStopStreamResetsViewerCount(t *testing.T) {
	env := newTestEnv()
	view := env.createMarket("0xcreator")

	_, err := env.stream.StartStream(context.Background(), "0xcreator", view.ID)
	require.NoError(t, err)
	_, err = env.stream.ViewerJoin(context.Background(), "0xalice", view.ID)
	require.NoError(t, err)
	_, err = env.stream.ViewerJoin(context.Background(), "0xbob", view.ID)
	require.NoError(t, err)

	require.NoError(t, env.stream.StopStream(context.Background(), "0xcreator", view.ID))
	assert.Equal(t, 0, env.registry.ViewerCount(view.ID))

	// A join after the stop starts a fresh session; the old viewer set does
	// not leak into the count.
	count, err := env.stream.ViewerJoin(context.Background(), "0xcarol", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestViewerJoinAndLeaveBroadcastCounts(t *testing.T) {
	env := newTestEnv()
	view := env.createMarket("0xcreator")

	count, err := env.stream.ViewerJoin(context.Background(), "0xalice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A duplicate join neither inflates the count nor re-broadcasts.
	count, err = env.stream.ViewerJoin(context.Background(), "0xalice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = env.stream.ViewerJoin(context.Background(), "0xbob", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = env.stream.ViewerLeave(context.Background(), "0xalice", view.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	room := env.broadcast.events(view.ID)
	require.Len(t, room, 3)
	assert.Equal(t, domain.EvViewerJoined, room[0].Event)
	assert.Equal(t, domain.EvViewerJoined, room[1].Event)
	assert.Equal(t, domain.EvViewerLeft, room[2].Event)
	assert.Equal(t, 1, room[2].Data.(domain.ViewerUpdate).ViewerCount)
}

func TestForwardDeliversToTargetOnly(t *testing.T) {
	env := newTestEnv("0xbob")
	view := env.createMarket("0xcreator")

	env.stream.Forward("0xalice", "0xbob", view.ID, domain.EvOffer, map[string]string{"sdp": "v=0"})

	sent := env.broadcast.events("0xbob")
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EvOffer, sent[0].Event)
	payload := sent[0].Data.(domain.SignalPayload)
	assert.Equal(t, "0xalice", payload.FromWallet)
	assert.Equal(t, view.ID, payload.MarketID)
}

func TestForwardToOfflineTargetIsSilent(t *testing.T) {
	env := newTestEnv()
	view := env.createMarket("0xcreator")

	// Nobody is online; the frame vanishes without error or broadcast.
	before := len(env.broadcast.sent)
	env.stream.Forward("0xalice", "0xghost", view.ID, domain.EvAnswer, nil)
	assert.Len(t, env.broadcast.sent, before)
}

func TestAcceptJoinOnlyByStreamer(t *testing.T) {
	env := newTestEnv("0xalice")
	view := env.createMarket("0xcreator")

	err := env.stream.AcceptJoin("0xcreator", view.ID, "0xalice")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.stream.StartStream(context.Background(), "0xcreator", view.ID)
	require.NoError(t, err)

	err = env.stream.AcceptJoin("0xmallory", view.ID, "0xalice")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, env.stream.AcceptJoin("0xcreator", view.ID, "0xalice"))
	sent := env.broadcast.events("0xalice")
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EvJoinAccepted, sent[0].Event)
}

func TestHandleDisconnectTearsDownRoles(t *testing.T) {
	env := newTestEnv()
	hosted := env.createMarket("0xalice")
	watched := env.createMarket("0xcreator")

	_, err := env.stream.StartStream(context.Background(), "0xalice", hosted.ID)
	require.NoError(t, err)
	_, err = env.stream.ViewerJoin(context.Background(), "0xalice", watched.ID)
	require.NoError(t, err)

	env.stream.HandleDisconnect("0xalice")

	_, live := env.registry.Streamer(hosted.ID)
	assert.False(t, live)
	assert.Equal(t, 0, env.registry.ViewerCount(watched.ID))

	detail, err := env.market.Detail(context.Background(), hosted.ID)
	require.NoError(t, err)
	assert.False(t, detail.Livestream.IsLive)
}
