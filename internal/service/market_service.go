package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/ledger"
)

// MarketService handles market lifecycle and read operations.
type MarketService struct {
	ledger    *ledger.Ledger
	markets   domain.MarketStore
	users     domain.UserStore
	history   domain.PriceHistoryStore
	cache     domain.MarketCache
	bus       domain.SignalBus
	broadcast domain.Broadcaster
	logger    *slog.Logger
}

// NewMarketService wires a MarketService. cache and bus may be nil when the
// process runs without Redis.
func NewMarketService(
	l *ledger.Ledger,
	markets domain.MarketStore,
	users domain.UserStore,
	history domain.PriceHistoryStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	broadcast domain.Broadcaster,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		ledger:    l,
		markets:   markets,
		users:     users,
		history:   history,
		cache:     cache,
		bus:       bus,
		broadcast: broadcast,
		logger:    logger,
	}
}

// Create opens a new market, records it under the creator's profile, and
// announces it to every connected client.
func (s *MarketService) Create(ctx context.Context, p ledger.CreateParams) (MarketView, error) {
	m, err := s.ledger.Create(ctx, p)
	if err != nil {
		return MarketView{}, err
	}

	// Profile bookkeeping is best-effort: the market exists either way.
	if err := s.users.AddCreatedMarket(ctx, m.Creator, m.ID); err != nil {
		s.logger.Error("service: record created market",
			slog.String("wallet", m.Creator),
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	// market_created goes to every client; the room mirror channel only
	// carries room broadcasts, and the room does not exist yet.
	view := NewMarketView(m)
	s.broadcast.BroadcastAll(domain.EvMarketCreated, view)
	return view, nil
}

// List returns a filtered, paginated page of markets.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) (MarketList, error) {
	markets, total, err := s.markets.List(ctx, opts)
	if err != nil {
		return MarketList{}, fmt.Errorf("service: list markets: %w", err)
	}

	views := make([]MarketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, NewMarketView(m))
	}
	return MarketList{Markets: views, Total: total}, nil
}

// Detail returns one market, serving from the cache when possible.
func (s *MarketService) Detail(ctx context.Context, marketID string) (MarketView, error) {
	if s.cache != nil {
		if m, ok, err := s.cache.Get(ctx, marketID); err != nil {
			s.logger.Warn("service: market cache read",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return NewMarketView(m), nil
		}
	}

	m, err := s.ledger.Get(ctx, marketID)
	if err != nil {
		return MarketView{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.Warn("service: market cache write",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return NewMarketView(m), nil
}

// PriceHistory returns a market's price time series, oldest first.
func (s *MarketService) PriceHistory(ctx context.Context, marketID string, limit int) ([]PricePoint, error) {
	if _, err := s.ledger.Get(ctx, marketID); err != nil {
		return nil, err
	}

	snaps, err := s.history.ListByMarket(ctx, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: price history for %s: %w", marketID, err)
	}

	points := make([]PricePoint, 0, len(snaps))
	for _, snap := range snaps {
		points = append(points, PricePoint{
			BullishSupply: snap.BullishSupply,
			FadeSupply:    snap.FadeSupply,
			BullishPrice:  snap.BullishPrice,
			FadePrice:     snap.FadePrice,
			PoolBalance:   snap.PoolBalance,
			CreatedAt:     snap.CreatedAt,
		})
	}
	return points, nil
}

// Profile returns a wallet's profile. A wallet that has never created a
// market gets an empty profile, not an error.
func (s *MarketService) Profile(ctx context.Context, wallet string) (ProfileView, error) {
	if wallet == "" {
		return ProfileView{}, fmt.Errorf("service: profile: missing wallet: %w", domain.ErrValidation)
	}

	p, err := s.users.Get(ctx, wallet)
	if errors.Is(err, domain.ErrNotFound) {
		return ProfileView{Wallet: wallet, CreatedMarkets: []string{}}, nil
	}
	if err != nil {
		return ProfileView{}, fmt.Errorf("service: profile for %s: %w", wallet, err)
	}

	created := p.CreatedMarkets
	if created == nil {
		created = []string{}
	}
	return ProfileView{Wallet: p.Wallet, CreatedMarkets: created}, nil
}

// Cancel voids a market before its deadline. Only the creator may cancel.
// The terminal broadcast runs under the market lock so it cannot interleave
// with a trade's market_update.
func (s *MarketService) Cancel(ctx context.Context, marketID, wallet string) (MarketView, error) {
	m, err := s.ledger.Get(ctx, marketID)
	if err != nil {
		return MarketView{}, err
	}
	if m.Creator != wallet {
		return MarketView{}, fmt.Errorf("service: cancel %s: wallet %s is not the creator: %w", marketID, wallet, domain.ErrUnauthorized)
	}

	cancelled, err := s.ledger.Cancel(ctx, marketID, func(final domain.Market) {
		ended := domain.MarketEnded{
			MarketID:    final.ID,
			Status:      string(final.Status),
			FinalResult: final.FinalResult,
		}
		s.broadcast.BroadcastRoom(final.ID, domain.EvMarketEnded, ended)
		s.mirror(ctx, final.ID, domain.EvMarketEnded, ended)
	})
	if err != nil {
		return MarketView{}, err
	}

	s.invalidate(ctx, marketID)
	return NewMarketView(cancelled), nil
}

// invalidate drops a market's cache entry, logging failures.
func (s *MarketService) invalidate(ctx context.Context, marketID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.Warn("service: cache invalidate",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// mirror publishes an event copy onto the market's pub/sub channel.
func (s *MarketService) mirror(ctx context.Context, marketID, event string, data any) {
	PublishMirror(ctx, s.bus, s.logger, marketID, event, data)
}
