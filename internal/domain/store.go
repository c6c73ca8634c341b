package domain

import "context"

// ListOpts provides pagination, filtering and ordering for market listings.
type ListOpts struct {
	Status MarketStatus // empty = any status
	Search string       // substring match on title or ticker
	Sort   string       // "newest" (default), "ending_soon", "pool"
	Limit  int
	Offset int
}

// MarketStore persists market records. Callers are responsible for ordering
// concurrent mutations of a single market; the store itself only does plain
// reads and writes.
type MarketStore interface {
	Insert(ctx context.Context, m Market) error
	Get(ctx context.Context, id string) (Market, error)
	Update(ctx context.Context, m Market) error
	List(ctx context.Context, opts ListOpts) ([]Market, int64, error)
	ListActive(ctx context.Context) ([]Market, error)
}

// TradeStore persists the append-only trade log.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByMarket(ctx context.Context, marketID string, limit int) ([]Trade, error)
}

// PriceHistoryStore persists per-market price snapshots.
type PriceHistoryStore interface {
	Insert(ctx context.Context, s PriceSnapshot) error
	ListByMarket(ctx context.Context, marketID string, limit int) ([]PriceSnapshot, error)
}

// UserStore persists wallet profiles.
type UserStore interface {
	// AddCreatedMarket registers marketID under the wallet's profile as a
	// set union: calling it twice with the same pair leaves one entry.
	AddCreatedMarket(ctx context.Context, wallet, marketID string) error
	Get(ctx context.Context, wallet string) (UserProfile, error)
}
