package domain

import (
	"context"
	"time"
)

// MarketCache is a read-through cache for market detail snapshots.
type MarketCache interface {
	Get(ctx context.Context, marketID string) (Market, bool, error)
	Set(ctx context.Context, m Market) error
	Invalidate(ctx context.Context, marketID string) error
}

// RoomChannel names the pub/sub channel that mirrors a market room.
func RoomChannel(marketID string) string {
	return "room:" + marketID
}

// RoomChannelPattern matches every room mirror channel in a pattern
// subscription.
const RoomChannelPattern = "room:*"

// SignalBus mirrors room broadcasts onto an external pub/sub channel so
// out-of-process consumers (bots, analytics) can follow market events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locks. The sweeper uses it as a leader
// lock so only one process instance runs a sweep pass at a time.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when
	// another holder owns the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
