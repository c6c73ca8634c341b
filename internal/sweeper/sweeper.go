// Package sweeper runs the market lifecycle poll: every tick it scans active
// markets and ends the ones whose deadline has passed. Ending goes through
// the ledger's locked path, so a sweep can never race a trade, and a market
// that already ended is skipped without re-broadcasting.
package sweeper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/ledger"
	"github.com/marcusleung/memecast/internal/service"
)

const (
	// DefaultInterval is the sweep period when config does not override it.
	DefaultInterval = 10 * time.Second

	// leaderKey is the distributed lock key shared by all process instances.
	leaderKey = "sweeper:leader"
)

// Sweeper polls for expired markets and transitions them to ended.
type Sweeper struct {
	ledger    *ledger.Ledger
	markets   domain.MarketStore
	locks     domain.LockManager
	cache     domain.MarketCache
	bus       domain.SignalBus
	broadcast domain.Broadcaster
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
}

// New creates a Sweeper. locks, cache and bus may be nil; a nil lock manager
// means every instance sweeps, which is safe but redundant.
func New(
	l *ledger.Ledger,
	markets domain.MarketStore,
	locks domain.LockManager,
	cache domain.MarketCache,
	bus domain.SignalBus,
	broadcast domain.Broadcaster,
	logger *slog.Logger,
	interval time.Duration,
) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		ledger:    l,
		markets:   markets,
		locks:     locks,
		cache:     cache,
		bus:       bus,
		broadcast: broadcast,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// SetNow overrides the sweeper's clock. Intended for tests.
func (s *Sweeper) SetNow(now func() time.Time) {
	s.now = now
}

// Run sweeps on a fixed interval until ctx is cancelled. A market is only
// ever ended after its deadline, never before: expiry is evaluated against
// the clock at sweep time, so a market ends within one interval of its
// deadline.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper: started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Under the leader lock it lists active markets and ends
// every expired one. Per-market failures are logged and the pass continues;
// a pass never aborts half way because one market misbehaved.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, leaderKey, 2*s.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			s.logger.Debug("sweeper: another instance holds the leader lock")
			return
		}
		if err != nil {
			s.logger.Error("sweeper: acquire leader lock", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}

	active, err := s.markets.ListActive(ctx)
	if err != nil {
		s.logger.Error("sweeper: list active markets", slog.String("error", err.Error()))
		return
	}

	now := s.now().UTC()
	ended := 0
	for _, m := range active {
		if !m.Expired(now) {
			continue
		}
		if s.endMarket(ctx, m.ID) {
			ended++
		}
	}

	if ended > 0 {
		s.logger.Info("sweeper: pass complete",
			slog.Int("scanned", len(active)),
			slog.Int("ended", ended),
		)
	}
}

// endMarket ends one expired market and emits its terminal broadcasts from
// inside the ledger's post-commit hook, keeping them ordered against any
// concurrent trade's market_update.
func (s *Sweeper) endMarket(ctx context.Context, marketID string) bool {
	_, err := s.ledger.End(ctx, marketID, domain.ResultNone, func(final domain.Market) {
		update := domain.NewMarketUpdate(final)
		endedEvt := domain.MarketEnded{
			MarketID:    final.ID,
			Status:      string(final.Status),
			FinalResult: final.FinalResult,
		}
		s.broadcast.BroadcastRoom(final.ID, domain.EvMarketUpdate, update)
		s.broadcast.BroadcastRoom(final.ID, domain.EvMarketEnded, endedEvt)
		s.mirror(ctx, final.ID, domain.EvMarketEnded, endedEvt)
	})
	if errors.Is(err, domain.ErrMarketInactive) {
		// Lost the race to a cancel or an earlier sweep; nothing to emit.
		return false
	}
	if err != nil {
		s.logger.Error("sweeper: end market",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, marketID); err != nil {
			s.logger.Warn("sweeper: cache invalidate",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}
	return true
}

// mirror copies a terminal broadcast onto the market's mirror channel, in the
// same frame shape the services publish so the room mirror consumer can
// decode it.
func (s *Sweeper) mirror(ctx context.Context, marketID, event string, data any) {
	service.PublishMirror(ctx, s.bus, s.logger, marketID, event, data)
}
