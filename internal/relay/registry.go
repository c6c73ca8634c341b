// Package relay tracks in-memory stream sessions: who is streaming on a
// market, which wallets are watching, and the peer session handles that tie
// a viewer to the streamer. State here is deliberately ephemeral; a process
// restart loses it and clients re-establish it by rejoining.
package relay

import (
	"log/slog"
	"sync"
)

// Session is the per-market stream state.
type Session struct {
	Streamer string
	Viewers  map[string]bool
	// Peers maps a viewer wallet to its negotiated peer session handle so
	// the whole set can be torn down when the stream stops.
	Peers map[string]string
}

func newSession() *Session {
	return &Session{
		Viewers: make(map[string]bool),
		Peers:   make(map[string]string),
	}
}

func (s *Session) empty() bool {
	return s.Streamer == "" && len(s.Viewers) == 0
}

// Registry is the process-wide table of stream sessions, keyed by market id.
// One mutex guards the whole table; sessions are few and operations short.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// ViewerJoin adds a wallet to the market's viewer set. Membership is
// idempotent: joining twice without leaving does not double-count. It
// returns the resulting viewer count and whether the set actually grew.
func (r *Registry) ViewerJoin(marketID, wallet string) (count int, added bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[marketID]
	if !ok {
		s = newSession()
		r.sessions[marketID] = s
	}
	if !s.Viewers[wallet] {
		s.Viewers[wallet] = true
		added = true
	}
	return len(s.Viewers), added
}

// ViewerLeave removes a wallet from the market's viewer set. When the set
// becomes empty and no streamer is live, the session is discarded so the
// next join starts fresh. It returns the resulting count and whether the
// wallet was actually a viewer.
func (r *Registry) ViewerLeave(marketID, wallet string) (count int, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[marketID]
	if !ok {
		return 0, false
	}
	if s.Viewers[wallet] {
		delete(s.Viewers, wallet)
		delete(s.Peers, wallet)
		removed = true
	}
	count = len(s.Viewers)
	if s.empty() {
		delete(r.sessions, marketID)
	}
	return count, removed
}

// SetStreamer marks the wallet as the market's live streamer.
func (r *Registry) SetStreamer(marketID, wallet string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[marketID]
	if !ok {
		s = newSession()
		r.sessions[marketID] = s
	}
	s.Streamer = wallet
}

// ClearStreamer tears the whole session down: the streamer, the viewer set
// and every negotiated peer handle are discarded together, so the next
// ViewerJoin starts a fresh session counting from zero. It returns the
// discarded peer handles.
func (r *Registry) ClearStreamer(marketID string) (peers map[string]string, had bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[marketID]
	if !ok || s.Streamer == "" {
		return nil, false
	}
	delete(r.sessions, marketID)
	return s.Peers, true
}

// Streamer returns the live streamer for a market, if any.
func (r *Registry) Streamer(marketID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[marketID]
	if !ok || s.Streamer == "" {
		return "", false
	}
	return s.Streamer, true
}

// ViewerCount returns the current viewer count for a market.
func (r *Registry) ViewerCount(marketID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[marketID]
	if !ok {
		return 0
	}
	return len(s.Viewers)
}

// TrackPeer records the peer session handle negotiated for a viewer.
func (r *Registry) TrackPeer(marketID, viewer, handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[marketID]
	if !ok || !s.Viewers[viewer] {
		return
	}
	s.Peers[viewer] = handle
}

// Roles reports every market where the wallet is currently the streamer or
// a viewer. Used by the disconnect hook to tear down what the wallet left
// behind.
func (r *Registry) Roles(wallet string) (streaming, viewing []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for marketID, s := range r.sessions {
		if s.Streamer == wallet {
			streaming = append(streaming, marketID)
		}
		if s.Viewers[wallet] {
			viewing = append(viewing, marketID)
		}
	}
	return streaming, viewing
}
