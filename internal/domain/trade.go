package domain

import "time"

// Trade is an immutable record of one accepted buy. Trades are append-only:
// never mutated or deleted once written.
type Trade struct {
	ID        string
	MarketID  string
	Wallet    string
	Side      Side
	Shares    float64
	Price     float64
	Amount    float64
	CreatedAt time.Time
}

// PriceSnapshot is a point-in-time record of both side prices and supplies,
// appended after every state-changing trade so a time series can be read
// back without replaying the trade log.
type PriceSnapshot struct {
	ID            int64
	MarketID      string
	BullishSupply float64
	FadeSupply    float64
	BullishPrice  float64
	FadePrice     float64
	PoolBalance   float64
	CreatedAt     time.Time
}
