// Package domain defines the core entities, store interfaces, and wire
// events shared by every layer of the memecast backend.
package domain

// Inbound event names, sent by clients over the WebSocket transport.
const (
	EvAuth            = "auth"
	EvCreateMarket    = "create_market"
	EvJoinMarket      = "join_market"
	EvLeaveMarket     = "leave_market"
	EvBuyShares       = "buy_shares"
	EvGetMarkets      = "get_markets"
	EvGetMarketDetail = "get_market_detail"
	EvGetPriceHistory = "get_price_history"
	EvGetUserProfile  = "get_user_profile"
	EvCancelMarket    = "cancel_market"
	EvStartStream     = "start_stream"
	EvStopStream      = "stop_stream"
	EvViewerJoin      = "webrtc_viewer_join"
	EvViewerLeave     = "webrtc_viewer_leave"
	EvOffer           = "webrtc_offer"
	EvAnswer          = "webrtc_answer"
	EvICECandidate    = "webrtc_ice_candidate"
	EvRequestToJoin   = "request_to_join"
	EvAcceptJoin      = "accept_join_request"
)

// Outbound event names, pushed by the server.
const (
	EvMarketCreated   = "market_created"
	EvMarketUpdate    = "market_update"
	EvMarketEnded     = "market_ended"
	EvStreamUpdate    = "stream_update"
	EvViewerJoined    = "webrtc_viewer_joined"
	EvViewerLeft      = "webrtc_viewer_left"
	EvJoinRequested   = "join_requested"
	EvJoinAccepted    = "join_accepted"
	EvPresenceOffline = "presence_offline"
)

// MarketUpdate is the aggregate state broadcast to a market's room after
// every committed mutation.
type MarketUpdate struct {
	MarketID      string  `json:"market_id"`
	BullishSupply float64 `json:"bullish_supply"`
	FadeSupply    float64 `json:"fade_supply"`
	BullishPrice  float64 `json:"bullish_price"`
	FadePrice     float64 `json:"fade_price"`
	PoolBalance   float64 `json:"pool_balance"`
}

// MarketEnded announces the terminal state of an expired or resolved market.
type MarketEnded struct {
	MarketID    string      `json:"market_id"`
	Status      string      `json:"status"`
	FinalResult FinalResult `json:"final_result"`
}

// StreamUpdate announces livestream liveness for a market.
type StreamUpdate struct {
	MarketID    string `json:"market_id"`
	IsLive      bool   `json:"is_live"`
	PlaybackURL string `json:"playback_url,omitempty"`
}

// ViewerUpdate announces a viewer joining or leaving a market's stream.
type ViewerUpdate struct {
	MarketID     string `json:"market_id"`
	ViewerWallet string `json:"viewer_wallet"`
	ViewerCount  int    `json:"viewer_count"`
}

// SignalPayload carries a forwarded WebRTC negotiation message. Payload is
// delivered verbatim; the relay never inspects SDP or ICE contents.
type SignalPayload struct {
	MarketID   string `json:"market_id"`
	FromWallet string `json:"from_wallet"`
	Payload    any    `json:"payload"`
}

// NewMarketUpdate snapshots the broadcastable aggregate state of m.
func NewMarketUpdate(m Market) MarketUpdate {
	return MarketUpdate{
		MarketID:      m.ID,
		BullishSupply: m.BullishSupply,
		FadeSupply:    m.FadeSupply,
		BullishPrice:  m.BullishPrice,
		FadePrice:     m.FadePrice,
		PoolBalance:   m.PoolBalance,
	}
}

// Broadcaster fans events out to connected clients. Room delivery is
// fire-and-forget: no retry, no persistence, slow consumers are dropped.
type Broadcaster interface {
	// BroadcastRoom delivers an event to every connection joined to room.
	BroadcastRoom(room, event string, data any)
	// BroadcastAll delivers an event to every connection.
	BroadcastAll(event string, data any)
	// SendToWallet delivers an event to the wallet's connection, if present.
	// It reports whether a connection was found; absence is not an error.
	SendToWallet(wallet, event string, data any) bool
}
