package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/ledger"
)

// BuyParams are the inputs for a buy. Exactly one of Shares or Amount must be
// positive: Shares buys a fixed share count at the current curve price,
// Amount spends a fixed sum and derives the share count from the same curve.
type BuyParams struct {
	MarketID string
	Wallet   string
	Side     domain.Side
	Shares   float64
	Amount   float64
}

// TradeService executes buys and maintains the trade log, the price history,
// and the post-trade fan-out.
type TradeService struct {
	ledger    *ledger.Ledger
	trades    domain.TradeStore
	history   domain.PriceHistoryStore
	cache     domain.MarketCache
	bus       domain.SignalBus
	broadcast domain.Broadcaster
	logger    *slog.Logger
	now       func() time.Time
}

// NewTradeService wires a TradeService.
func NewTradeService(
	l *ledger.Ledger,
	trades domain.TradeStore,
	history domain.PriceHistoryStore,
	cache domain.MarketCache,
	bus domain.SignalBus,
	broadcast domain.Broadcaster,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		ledger:    l,
		trades:    trades,
		history:   history,
		cache:     cache,
		bus:       bus,
		broadcast: broadcast,
		logger:    logger,
		now:       time.Now,
	}
}

// Buy executes one buy on behalf of authWallet. A request naming a different
// wallet than the authenticated one is rejected; a client can only spend as
// itself. The trade record, price snapshot and room broadcast all happen
// inside the ledger's post-commit hook, so broadcasts leave in the same order
// the mutations committed.
func (s *TradeService) Buy(ctx context.Context, authWallet string, p BuyParams) (BuyReceipt, error) {
	if authWallet == "" {
		return BuyReceipt{}, fmt.Errorf("service: buy: not authenticated: %w", domain.ErrUnauthorized)
	}
	if p.Wallet != "" && p.Wallet != authWallet {
		return BuyReceipt{}, fmt.Errorf("service: buy: wallet %s does not match session: %w", p.Wallet, domain.ErrUnauthorized)
	}
	if p.MarketID == "" {
		return BuyReceipt{}, fmt.Errorf("service: buy: missing market id: %w", domain.ErrValidation)
	}

	post := func(res ledger.TradeResult) error {
		return s.afterCommit(ctx, authWallet, p.Side, res)
	}

	var (
		res ledger.TradeResult
		err error
	)
	switch {
	case p.Shares > 0:
		res, err = s.ledger.ApplyTrade(ctx, p.MarketID, authWallet, p.Side, p.Shares, post)
	case p.Amount > 0:
		res, err = s.ledger.ApplySpend(ctx, p.MarketID, authWallet, p.Side, p.Amount, post)
	default:
		return BuyReceipt{}, fmt.Errorf("service: buy on %s: neither shares nor amount given: %w", p.MarketID, domain.ErrInvalidAmount)
	}
	if err != nil {
		return BuyReceipt{}, err
	}

	if s.cache != nil {
		if cerr := s.cache.Invalidate(ctx, p.MarketID); cerr != nil {
			s.logger.Warn("service: cache invalidate after buy",
				slog.String("market_id", p.MarketID),
				slog.String("error", cerr.Error()),
			)
		}
	}
	return newBuyReceipt(authWallet, p.Side, res), nil
}

// afterCommit runs under the market lock, after the market row is persisted.
// The trade record and price snapshot are part of the operation's durable
// outcome, so their errors surface to the caller; the broadcast and mirror
// are fire-and-forget.
func (s *TradeService) afterCommit(ctx context.Context, wallet string, side domain.Side, res ledger.TradeResult) error {
	m := res.Market
	t := domain.Trade{
		ID:        uuid.New().String(),
		MarketID:  m.ID,
		Wallet:    wallet,
		Side:      side,
		Shares:    res.Shares,
		Price:     res.Price,
		Amount:    res.Cost,
		CreatedAt: s.now().UTC(),
	}
	if err := s.trades.Insert(ctx, t); err != nil {
		return fmt.Errorf("service: record trade on %s: %w", m.ID, err)
	}

	snap := domain.PriceSnapshot{
		MarketID:      m.ID,
		BullishSupply: m.BullishSupply,
		FadeSupply:    m.FadeSupply,
		BullishPrice:  m.BullishPrice,
		FadePrice:     m.FadePrice,
		PoolBalance:   m.PoolBalance,
		CreatedAt:     t.CreatedAt,
	}
	if err := s.history.Insert(ctx, snap); err != nil {
		return fmt.Errorf("service: record price snapshot on %s: %w", m.ID, err)
	}

	update := domain.NewMarketUpdate(m)
	s.broadcast.BroadcastRoom(m.ID, domain.EvMarketUpdate, update)
	PublishMirror(ctx, s.bus, s.logger, m.ID, domain.EvMarketUpdate, update)
	return nil
}

// Trades returns a market's most recent trades, newest first.
func (s *TradeService) Trades(ctx context.Context, marketID string, limit int) ([]domain.Trade, error) {
	trades, err := s.trades.ListByMarket(ctx, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("service: trades for %s: %w", marketID, err)
	}
	return trades, nil
}
