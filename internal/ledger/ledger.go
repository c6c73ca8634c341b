// Package ledger owns the authoritative economic state of every market. All
// mutations of a single market are serialized through a per-market mutex so
// concurrent trades can never lose a pool update or misprice the next buy.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/pricing"
)

// Config holds the economic constants shared process-wide.
type Config struct {
	Curve   pricing.Curve
	FeeRate float64 // creator fee skim, fraction of gross cost
}

// Ledger applies market mutations against the backing store under a
// per-market lock. It is safe for concurrent use.
type Ledger struct {
	markets domain.MarketStore
	curve   pricing.Curve
	feeRate float64
	locks   *keyedMutex
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Ledger over the given market store.
func New(markets domain.MarketStore, cfg Config, logger *slog.Logger) *Ledger {
	return &Ledger{
		markets: markets,
		curve:   cfg.Curve,
		feeRate: cfg.FeeRate,
		locks:   newKeyedMutex(),
		logger:  logger,
		now:     time.Now,
	}
}

// SetNow overrides the ledger's clock. Intended for tests.
func (l *Ledger) SetNow(now func() time.Time) {
	l.now = now
}

// Curve exposes the pricing curve so callers can quote without mutating.
func (l *Ledger) Curve() pricing.Curve {
	return l.curve
}

// CreateParams are the inputs for creating a market.
type CreateParams struct {
	Creator       string
	Title         string
	Ticker        string
	Description   string
	MediaURL      string
	BannerURL     string
	SocialLinks   map[string]string
	DurationHours int
}

// Create validates params, builds a fresh market with both supplies at zero
// and both prices at the curve's base, and persists it.
func (l *Ledger) Create(ctx context.Context, p CreateParams) (domain.Market, error) {
	if p.Creator == "" || p.Title == "" || p.Ticker == "" {
		return domain.Market{}, fmt.Errorf("ledger: create: missing creator, title or ticker: %w", domain.ErrValidation)
	}
	if !domain.DurationAllowed(p.DurationHours) {
		return domain.Market{}, fmt.Errorf("ledger: create: duration %dh not allowed: %w", p.DurationHours, domain.ErrValidation)
	}

	now := l.now().UTC()
	base := l.curve.Price(0)
	m := domain.Market{
		ID:            uuid.New().String(),
		Creator:       p.Creator,
		Title:         p.Title,
		Ticker:        p.Ticker,
		Description:   p.Description,
		MediaURL:      p.MediaURL,
		BannerURL:     p.BannerURL,
		SocialLinks:   p.SocialLinks,
		BullishPrice:  base,
		FadePrice:     base,
		StartTime:     now,
		EndTime:       now.Add(time.Duration(p.DurationHours) * time.Hour),
		DurationHours: p.DurationHours,
		Status:        domain.MarketStatusActive,
		FinalResult:   domain.ResultNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := l.markets.Insert(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("ledger: create market %s: %w", m.ID, err)
	}

	l.logger.Info("ledger: market created",
		slog.String("market_id", m.ID),
		slog.String("ticker", m.Ticker),
		slog.Int("duration_hours", m.DurationHours),
	)
	return m, nil
}

// TradeResult describes one accepted buy together with the market state it
// produced.
type TradeResult struct {
	Market domain.Market
	Shares float64
	Price  float64
	Cost   float64
	Fee    float64
}

// PostCommit runs after a trade's market row has been persisted, while the
// market lock is still held. Services use it to append the trade record and
// fan out the room broadcast, which keeps broadcasts in commit order. A nil
// PostCommit is allowed. An error from PostCommit is returned to the caller;
// the ledger mutation itself is already committed at that point.
type PostCommit func(TradeResult) error

// ApplyTrade executes a buy of the given share count. The read-modify-write
// of supply, price and pool runs under the market's lock; two concurrent
// trades on the same market serialize in some total order.
func (l *Ledger) ApplyTrade(ctx context.Context, marketID, wallet string, side domain.Side, shares float64, post PostCommit) (TradeResult, error) {
	if !validQuantity(shares) {
		return TradeResult{}, fmt.Errorf("ledger: trade on %s: shares %v: %w", marketID, shares, domain.ErrInvalidAmount)
	}
	return l.apply(ctx, marketID, wallet, side, func(supply float64) (float64, float64) {
		return shares, l.curve.Price(supply)
	}, post)
}

// ApplySpend executes a buy by spend amount rather than share count. The
// share count is derived from the same bonding curve that prices share-count
// buys, so both paths quote from a single source of truth.
func (l *Ledger) ApplySpend(ctx context.Context, marketID, wallet string, side domain.Side, amount float64, post PostCommit) (TradeResult, error) {
	if !validQuantity(amount) {
		return TradeResult{}, fmt.Errorf("ledger: spend on %s: amount %v: %w", marketID, amount, domain.ErrInvalidAmount)
	}
	return l.apply(ctx, marketID, wallet, side, func(supply float64) (float64, float64) {
		shares, unit := l.curve.SharesForAmount(amount, supply)
		return shares, unit
	}, post)
}

// apply runs the locked buy path. quote maps the side's current supply to
// the share count and unit price of this trade.
func (l *Ledger) apply(ctx context.Context, marketID, wallet string, side domain.Side, quote func(supply float64) (shares, unit float64), post PostCommit) (TradeResult, error) {
	if !side.Valid() {
		return TradeResult{}, fmt.Errorf("ledger: trade on %s: side %q: %w", marketID, side, domain.ErrValidation)
	}

	unlock := l.locks.lock(marketID)
	defer unlock()

	m, err := l.markets.Get(ctx, marketID)
	if err != nil {
		return TradeResult{}, fmt.Errorf("ledger: trade on %s: %w", marketID, err)
	}
	if !m.Active() {
		return TradeResult{}, fmt.Errorf("ledger: trade on %s: status %s: %w", marketID, m.Status, domain.ErrMarketInactive)
	}

	supply := m.Supply(side)
	shares, unit := quote(supply)
	if !validQuantity(shares) {
		return TradeResult{}, fmt.Errorf("ledger: trade on %s: derived shares %v: %w", marketID, shares, domain.ErrInvalidAmount)
	}

	cost := pricing.Round(unit * shares)
	fee := pricing.Round(cost * l.feeRate)

	if side == domain.SideBullish {
		m.BullishSupply += shares
		m.BullishPrice = l.curve.Price(m.BullishSupply)
	} else {
		m.FadeSupply += shares
		m.FadePrice = l.curve.Price(m.FadeSupply)
	}
	m.PoolBalance = pricing.Round(m.PoolBalance + cost - fee)
	m.CreatorRevenue.TotalEarned = pricing.Round(m.CreatorRevenue.TotalEarned + fee)
	m.CreatorRevenue.Withdrawable = pricing.Round(m.CreatorRevenue.Withdrawable + fee)
	m.Buys = append(m.Buys, domain.BuyRecord{Wallet: wallet, Side: side, Shares: shares, Price: unit})
	m.UpdatedAt = l.now().UTC()

	if err := l.markets.Update(ctx, m); err != nil {
		return TradeResult{}, fmt.Errorf("ledger: persist trade on %s: %w", marketID, err)
	}

	res := TradeResult{Market: m, Shares: shares, Price: unit, Cost: cost, Fee: fee}
	if post != nil {
		if err := post(res); err != nil {
			return res, err
		}
	}
	return res, nil
}

// End transitions a market from active to ended with the given result. When
// the market is already ended or cancelled it returns ErrMarketInactive and
// leaves state untouched, so a double sweep never re-emits a terminal state.
// post, if non-nil, runs under the market lock after the transition commits;
// it is where the caller broadcasts the terminal state.
func (l *Ledger) End(ctx context.Context, marketID string, result domain.FinalResult, post func(domain.Market)) (domain.Market, error) {
	return l.terminate(ctx, marketID, domain.MarketStatusEnded, result, post)
}

// Cancel transitions a market from active to cancelled.
func (l *Ledger) Cancel(ctx context.Context, marketID string, post func(domain.Market)) (domain.Market, error) {
	return l.terminate(ctx, marketID, domain.MarketStatusCancelled, domain.ResultNone, post)
}

func (l *Ledger) terminate(ctx context.Context, marketID string, status domain.MarketStatus, result domain.FinalResult, post func(domain.Market)) (domain.Market, error) {
	unlock := l.locks.lock(marketID)
	defer unlock()

	m, err := l.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("ledger: end %s: %w", marketID, err)
	}
	if !m.Active() {
		return m, fmt.Errorf("ledger: end %s: status %s: %w", marketID, m.Status, domain.ErrMarketInactive)
	}

	m.Status = status
	m.FinalResult = result
	m.Livestream = domain.Livestream{}
	m.UpdatedAt = l.now().UTC()

	if err := l.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("ledger: persist end %s: %w", marketID, err)
	}

	l.logger.Info("ledger: market terminated",
		slog.String("market_id", marketID),
		slog.String("status", string(status)),
		slog.String("final_result", string(result)),
	)
	if post != nil {
		post(m)
	}
	return m, nil
}

// SetLivestream writes the ephemeral livestream sub-state under the market
// lock. Only the creator may go live; an inactive market cannot.
func (l *Ledger) SetLivestream(ctx context.Context, marketID, wallet string, ls domain.Livestream) (domain.Market, error) {
	unlock := l.locks.lock(marketID)
	defer unlock()

	m, err := l.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("ledger: livestream on %s: %w", marketID, err)
	}
	if m.Creator != wallet {
		return domain.Market{}, fmt.Errorf("ledger: livestream on %s: wallet %s is not the creator: %w", marketID, wallet, domain.ErrUnauthorized)
	}
	if ls.IsLive && !m.Active() {
		return domain.Market{}, fmt.Errorf("ledger: livestream on %s: status %s: %w", marketID, m.Status, domain.ErrMarketInactive)
	}

	m.Livestream = ls
	m.UpdatedAt = l.now().UTC()

	if err := l.markets.Update(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("ledger: persist livestream on %s: %w", marketID, err)
	}
	return m, nil
}

// Get returns the current state of a market.
func (l *Ledger) Get(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := l.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("ledger: get %s: %w", marketID, err)
	}
	return m, nil
}

func validQuantity(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
