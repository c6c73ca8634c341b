package relay

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewerJoinLeaveRestoresPriorSize(t *testing.T) {
	r := NewRegistry(slog.Default())

	count, added := r.ViewerJoin("m1", "0xa")
	assert.True(t, added)
	assert.Equal(t, 1, count)

	count, added = r.ViewerJoin("m1", "0xb")
	assert.True(t, added)
	assert.Equal(t, 2, count)

	count, removed := r.ViewerLeave("m1", "0xb")
	assert.True(t, removed)
	assert.Equal(t, 1, count)
}

func TestViewerJoinIsIdempotent(t *testing.T) {
	r := NewRegistry(slog.Default())

	r.ViewerJoin("m1", "0xa")
	count, added := r.ViewerJoin("m1", "0xa")
	assert.False(t, added)
	assert.Equal(t, 1, count)
}

func TestSessionDiscardedWhenEmptyAndStreamerless(t *testing.T) {
	r := NewRegistry(slog.Default())

	r.ViewerJoin("m1", "0xa")
	r.ViewerLeave("m1", "0xa")

	assert.Empty(t, r.sessions)

	// With a live streamer the session survives an empty viewer set.
	r.SetStreamer("m2", "0xcreator")
	r.ViewerJoin("m2", "0xa")
	r.ViewerLeave("m2", "0xa")
	assert.Contains(t, r.sessions, "m2")
}

func TestClearStreamerTearsDownWholeSession(t *testing.T) {
	r := NewRegistry(slog.Default())

	r.SetStreamer("m1", "0xcreator")
	r.ViewerJoin("m1", "0xa")
	r.ViewerJoin("m1", "0xb")
	r.TrackPeer("m1", "0xa", "pc-1")
	r.TrackPeer("m1", "0xb", "pc-2")

	peers, had := r.ClearStreamer("m1")
	assert.True(t, had)
	assert.Equal(t, map[string]string{"0xa": "pc-1", "0xb": "pc-2"}, peers)

	_, live := r.Streamer("m1")
	assert.False(t, live)
	assert.Equal(t, 0, r.ViewerCount("m1"))

	// A second clear is a no-op.
	_, had = r.ClearStreamer("m1")
	assert.False(t, had)

	// The next join starts a fresh session, not a continuation of the old
	// viewer set.
	count, _ := r.ViewerJoin("m1", "0xc")
	assert.Equal(t, 1, count)
}

func TestClearStreamerDropsEmptySession(t *testing.T) {
	r := NewRegistry(slog.Default())

	r.SetStreamer("m1", "0xcreator")
	_, had := r.ClearStreamer("m1")
	assert.True(t, had)
	assert.Empty(t, r.sessions)

	// A fresh join after teardown starts from zero.
	count, _ := r.ViewerJoin("m1", "0xa")
	assert.Equal(t, 1, count)
}

func TestTrackPeerIgnoresUnknownViewer(t *testing.T) {
	r := NewRegistry(slog.Default())

	r.SetStreamer("m1", "0xcreator")
	r.TrackPeer("m1", "0xghost", "pc-9")
	peers, _ := r.ClearStreamer("m1")
	assert.Empty(t, peers)
}

func TestRoles(t *testing.T) {
	r := NewRegistry(slog.Default())

	r.SetStreamer("m1", "0xa")
	r.ViewerJoin("m2", "0xa")
	r.ViewerJoin("m3", "0xb")

	streaming, viewing := r.Roles("0xa")
	assert.Equal(t, []string{"m1"}, streaming)
	assert.Equal(t, []string{"m2"}, viewing)

	streaming, viewing = r.Roles("0xzzz")
	assert.Empty(t, streaming)
	assert.Empty(t, viewing)
}
