package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/marcusleung/memecast/internal/domain"
)

// instanceID tags every mirror frame this process publishes. The RoomMirror
// consumer drops frames carrying its own id, so an instance never re-delivers
// what its hub already broadcast.
var instanceID = uuid.New().String()

// mirrorFrame is the JSON payload published on a market's mirror channel.
type mirrorFrame struct {
	Origin   string          `json:"origin"`
	MarketID string          `json:"market_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

// PublishMirror copies a room broadcast onto the market's pub/sub channel so
// peer instances and out-of-process consumers can follow the room. Failures
// are logged, never surfaced: the bus is an observer, not part of the commit
// path. A nil bus means the process runs without Redis and the call is a
// no-op.
func PublishMirror(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, marketID, event string, data any) {
	if bus == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Error("service: encode mirror", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	payload, err := json.Marshal(mirrorFrame{
		Origin:   instanceID,
		MarketID: marketID,
		Event:    event,
		Data:     raw,
	})
	if err != nil {
		logger.Error("service: encode mirror", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, domain.RoomChannel(marketID), payload); err != nil {
		logger.Warn("service: publish mirror",
			slog.String("market_id", marketID),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// RoomMirror subscribes to every room mirror channel and re-broadcasts frames
// published by peer instances into the local hub's rooms. It is what lets a
// client connected to one instance see events committed on another.
type RoomMirror struct {
	bus       domain.SignalBus
	broadcast domain.Broadcaster
	logger    *slog.Logger
}

// NewRoomMirror wires a RoomMirror over the given bus and hub.
func NewRoomMirror(bus domain.SignalBus, broadcast domain.Broadcaster, logger *slog.Logger) *RoomMirror {
	return &RoomMirror{bus: bus, broadcast: broadcast, logger: logger}
}

// Run consumes mirror frames until ctx is cancelled.
func (rm *RoomMirror) Run(ctx context.Context) error {
	frames, err := rm.bus.Subscribe(ctx, domain.RoomChannelPattern)
	if err != nil {
		return fmt.Errorf("service: room mirror subscribe: %w", err)
	}
	rm.logger.Info("service: room mirror started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-frames:
			if !ok {
				return nil
			}
			var f mirrorFrame
			if err := json.Unmarshal(payload, &f); err != nil || f.MarketID == "" || f.Event == "" {
				rm.logger.Debug("service: malformed mirror frame")
				continue
			}
			if f.Origin == instanceID {
				continue
			}
			rm.broadcast.BroadcastRoom(f.MarketID, f.Event, f.Data)
		}
	}
}
