package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/ledger"
	"github.com/marcusleung/memecast/internal/pricing"
	"github.com/marcusleung/memecast/internal/relay"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLedger(markets domain.MarketStore) *ledger.Ledger {
	return ledger.New(markets, ledger.Config{
		Curve:   pricing.Curve{Base: 0.10, K: 0.05},
		FeeRate: 0.02,
	}, testLogger())
}

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: make(map[string]domain.Market)}
}

func (s *memMarketStore) Insert(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) Get(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *memMarketStore) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = m
	return nil
}

func (s *memMarketStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Market, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if opts.Status != "" && m.Status != opts.Status {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

func (s *memMarketStore) ListActive(_ context.Context) ([]domain.Market, error) {
	ms, _, err := s.List(context.Background(), domain.ListOpts{Status: domain.MarketStatusActive})
	return ms, err
}

type memTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
	err    error
}

func (s *memTradeStore) Insert(_ context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.trades = append(s.trades, t)
	return nil
}

func (s *memTradeStore) ListByMarket(_ context.Context, marketID string, _ int) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memHistoryStore struct {
	mu    sync.Mutex
	snaps []domain.PriceSnapshot
}

func (s *memHistoryStore) Insert(_ context.Context, snap domain.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memHistoryStore) ListByMarket(_ context.Context, marketID string, _ int) ([]domain.PriceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PriceSnapshot
	for _, snap := range s.snaps {
		if snap.MarketID == marketID {
			out = append(out, snap)
		}
	}
	return out, nil
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]domain.UserProfile
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]domain.UserProfile)}
}

func (s *memUserStore) AddCreatedMarket(_ context.Context, wallet, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.users[wallet]
	p.Wallet = wallet
	for _, id := range p.CreatedMarkets {
		if id == marketID {
			s.users[wallet] = p
			return nil
		}
	}
	p.CreatedMarkets = append(p.CreatedMarkets, marketID)
	s.users[wallet] = p
	return nil
}

func (s *memUserStore) Get(_ context.Context, wallet string) (domain.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.users[wallet]
	if !ok {
		return domain.UserProfile{}, domain.ErrNotFound
	}
	return p, nil
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]domain.Market
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.Market)}
}

func (c *fakeCache) Get(_ context.Context, marketID string) (domain.Market, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[marketID]
	return m, ok, nil
}

func (c *fakeCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[m.ID] = m
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, marketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, marketID)
	c.invalidated = append(c.invalidated, marketID)
	return nil
}

type fakeBus struct {
	mu       sync.Mutex
	messages map[string][][]byte
	subs     map[string]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		messages: make(map[string][][]byte),
		subs:     make(map[string]chan []byte),
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel] = append(b.messages[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *fakeBus) subscribed(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[channel]
	return ok
}

// push delivers a payload to the channel's subscriber, as if a peer instance
// had published it.
func (b *fakeBus) push(channel string, payload []byte) {
	b.mu.Lock()
	ch := b.subs[channel]
	b.mu.Unlock()
	ch <- payload
}

// sentEvent records one fan-out call on the fake broadcaster. Target holds
// the room or wallet, or "*" for BroadcastAll.
type sentEvent struct {
	Target string
	Event  string
	Data   any
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	sent   []sentEvent
	online map[string]bool
}

func newFakeBroadcaster(online ...string) *fakeBroadcaster {
	b := &fakeBroadcaster{online: make(map[string]bool)}
	for _, w := range online {
		b.online[w] = true
	}
	return b
}

func (b *fakeBroadcaster) BroadcastRoom(room, event string, data any) {
	b.record(room, event, data)
}

func (b *fakeBroadcaster) BroadcastAll(event string, data any) {
	b.record("*", event, data)
}

func (b *fakeBroadcaster) SendToWallet(wallet, event string, data any) bool {
	if !b.online[wallet] {
		return false
	}
	b.record(wallet, event, data)
	return true
}

func (b *fakeBroadcaster) record(target, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentEvent{Target: target, Event: event, Data: data})
}

func (b *fakeBroadcaster) events(target string) []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentEvent
	for _, e := range b.sent {
		if e.Target == target {
			out = append(out, e)
		}
	}
	return out
}

var _ domain.Broadcaster = (*fakeBroadcaster)(nil)

// testEnv bundles a full service stack over in-memory fakes.
type testEnv struct {
	markets   *memMarketStore
	trades    *memTradeStore
	history   *memHistoryStore
	users     *memUserStore
	cache     *fakeCache
	bus       *fakeBus
	broadcast *fakeBroadcaster
	registry  *relay.Registry

	market *MarketService
	trade  *TradeService
	stream *StreamService
}

func newTestEnv(online ...string) *testEnv {
	env := &testEnv{
		markets:   newMemMarketStore(),
		trades:    &memTradeStore{},
		history:   &memHistoryStore{},
		users:     newMemUserStore(),
		cache:     newFakeCache(),
		bus:       newFakeBus(),
		broadcast: newFakeBroadcaster(online...),
		registry:  relay.NewRegistry(testLogger()),
	}
	l := testLedger(env.markets)
	env.market = NewMarketService(l, env.markets, env.users, env.history, env.cache, env.bus, env.broadcast, testLogger())
	env.trade = NewTradeService(l, env.trades, env.history, env.cache, env.bus, env.broadcast, testLogger())
	env.stream = NewStreamService(l, env.registry, env.cache, env.broadcast, env.bus, testLogger(), "https://cdn.memecast.live/hls")
	return env
}

func (env *testEnv) createMarket(creator string) MarketView {
	view, err := env.market.Create(context.Background(), ledger.CreateParams{
		Creator:       creator,
		Title:         "Doge to the moon",
		Ticker:        "DOGE",
		DurationHours: 24,
	})
	if err != nil {
		panic(err)
	}
	return view
}
