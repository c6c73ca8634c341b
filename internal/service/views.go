// Package service implements the application operations behind the WebSocket
// events: market lifecycle, trading, and livestream signaling. Services
// compose the ledger, the stores, the cache and the broadcaster; handlers
// stay thin.
package service

import (
	"time"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/ledger"
)

// LivestreamView is the client-facing livestream state. The stream key is
// never included; only the creator receives it, in the start_stream ack.
type LivestreamView struct {
	IsLive      bool   `json:"is_live"`
	PlaybackURL string `json:"playback_url,omitempty"`
	RoomName    string `json:"room_name,omitempty"`
}

// MarketView is the client-facing snapshot of a market.
type MarketView struct {
	ID          string            `json:"id"`
	Creator     string            `json:"creator"`
	Title       string            `json:"title"`
	Ticker      string            `json:"ticker"`
	Description string            `json:"description,omitempty"`
	MediaURL    string            `json:"media_url,omitempty"`
	BannerURL   string            `json:"banner_url,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`

	BullishSupply  float64               `json:"bullish_supply"`
	FadeSupply     float64               `json:"fade_supply"`
	BullishPrice   float64               `json:"bullish_price"`
	FadePrice      float64               `json:"fade_price"`
	PoolBalance    float64               `json:"pool_balance"`
	CreatorRevenue domain.CreatorRevenue `json:"creator_revenue"`

	StartTime     time.Time          `json:"start_time"`
	EndTime       time.Time          `json:"end_time"`
	DurationHours int                `json:"duration_hours"`
	Status        string             `json:"status"`
	FinalResult   domain.FinalResult `json:"final_result"`

	Livestream LivestreamView `json:"livestream"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMarketView converts a domain market to its client-facing shape.
func NewMarketView(m domain.Market) MarketView {
	return MarketView{
		ID:             m.ID,
		Creator:        m.Creator,
		Title:          m.Title,
		Ticker:         m.Ticker,
		Description:    m.Description,
		MediaURL:       m.MediaURL,
		BannerURL:      m.BannerURL,
		SocialLinks:    m.SocialLinks,
		BullishSupply:  m.BullishSupply,
		FadeSupply:     m.FadeSupply,
		BullishPrice:   m.BullishPrice,
		FadePrice:      m.FadePrice,
		PoolBalance:    m.PoolBalance,
		CreatorRevenue: m.CreatorRevenue,
		StartTime:      m.StartTime,
		EndTime:        m.EndTime,
		DurationHours:  m.DurationHours,
		Status:         string(m.Status),
		FinalResult:    m.FinalResult,
		Livestream: LivestreamView{
			IsLive:      m.Livestream.IsLive,
			PlaybackURL: m.Livestream.PlaybackURL,
			RoomName:    m.Livestream.RoomName,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// MarketList is a page of markets together with the unpaged total.
type MarketList struct {
	Markets []MarketView `json:"markets"`
	Total   int64        `json:"total"`
}

// PricePoint is one entry of a market's price time series.
type PricePoint struct {
	BullishSupply float64   `json:"bullish_supply"`
	FadeSupply    float64   `json:"fade_supply"`
	BullishPrice  float64   `json:"bullish_price"`
	FadePrice     float64   `json:"fade_price"`
	PoolBalance   float64   `json:"pool_balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProfileView is the client-facing wallet profile.
type ProfileView struct {
	Wallet         string   `json:"wallet"`
	CreatedMarkets []string `json:"created_markets"`
}

// BuyReceipt reports one accepted buy back to the buyer.
type BuyReceipt struct {
	MarketID string      `json:"market_id"`
	Wallet   string      `json:"wallet"`
	Side     domain.Side `json:"side"`
	Shares   float64     `json:"shares"`
	Price    float64     `json:"price"`
	Cost     float64     `json:"cost"`
	Fee      float64     `json:"fee"`
	Market   MarketView  `json:"market"`
}

func newBuyReceipt(wallet string, side domain.Side, res ledger.TradeResult) BuyReceipt {
	return BuyReceipt{
		MarketID: res.Market.ID,
		Wallet:   wallet,
		Side:     side,
		Shares:   res.Shares,
		Price:    res.Price,
		Cost:     res.Cost,
		Fee:      res.Fee,
		Market:   NewMarketView(res.Market),
	}
}

// StreamInfo is the creator-only ack payload for start_stream. It is the only
// place the stream key leaves the server.
type StreamInfo struct {
	MarketID    string `json:"market_id"`
	StreamKey   string `json:"stream_key"`
	PlaybackURL string `json:"playback_url"`
	RoomName    string `json:"room_name"`
}
