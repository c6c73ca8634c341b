package domain

import "time"

// MarketStatus represents the lifecycle state of a market. Transitions are
// one-way: active -> ended or active -> cancelled.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusEnded     MarketStatus = "ended"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Side is one of the two opposing positions in a market.
type Side string

const (
	SideBullish Side = "bullish"
	SideFade    Side = "fade"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBullish || s == SideFade
}

// FinalResult is the outcome recorded when a market ends.
type FinalResult string

const (
	ResultBullish FinalResult = "bullish"
	ResultFade    FinalResult = "fade"
	ResultNone    FinalResult = "none"
)

// AllowedDurations is the enumerated set of valid market lifetimes in hours.
var AllowedDurations = []int{1, 6, 12, 24, 48, 72}

// DurationAllowed reports whether hours is a permitted market duration.
func DurationAllowed(hours int) bool {
	for _, h := range AllowedDurations {
		if h == hours {
			return true
		}
	}
	return false
}

// CreatorRevenue tracks the fee skim accumulated for a market's creator.
type CreatorRevenue struct {
	TotalEarned  float64 `json:"total_earned"`
	Withdrawable float64 `json:"withdrawable"`
}

// BuyRecord is one entry in a market's append-only participation trail.
type BuyRecord struct {
	Wallet string  `json:"wallet"`
	Side   Side    `json:"side"`
	Shares float64 `json:"shares"`
	Price  float64 `json:"price"`
}

// Livestream is the ephemeral livestream sub-state of a market. All fields
// are cleared when the streamer stops.
type Livestream struct {
	IsLive      bool   `json:"is_live"`
	StreamKey   string `json:"stream_key,omitempty"`
	PlaybackURL string `json:"playback_url,omitempty"`
	RoomName    string `json:"room_name,omitempty"`
}

// Market is the central entity: a short-lived binary prediction market on a
// meme event. Prices are derived from supply via the bonding curve and are
// only ever written together with a supply change.
type Market struct {
	ID          string
	Creator     string
	Title       string
	Ticker      string
	Description string
	MediaURL    string
	BannerURL   string
	SocialLinks map[string]string

	BullishSupply  float64
	FadeSupply     float64
	BullishPrice   float64
	FadePrice      float64
	PoolBalance    float64
	CreatorRevenue CreatorRevenue

	StartTime     time.Time
	EndTime       time.Time
	DurationHours int
	Status        MarketStatus
	FinalResult   FinalResult

	Buys       []BuyRecord
	Livestream Livestream

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the market still accepts trades.
func (m *Market) Active() bool {
	return m.Status == MarketStatusActive
}

// Expired reports whether the market's deadline has passed at the given time.
func (m *Market) Expired(now time.Time) bool {
	return !now.Before(m.EndTime)
}

// Supply returns the outstanding supply for the given side.
func (m *Market) Supply(side Side) float64 {
	if side == SideBullish {
		return m.BullishSupply
	}
	return m.FadeSupply
}
