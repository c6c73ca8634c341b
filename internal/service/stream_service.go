package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/ledger"
	"github.com/marcusleung/memecast/internal/relay"
)

// StreamService handles livestream lifecycle and the WebRTC signaling relay.
// The relay is a dumb pipe: SDP offers, answers and ICE candidates are
// forwarded verbatim to the target wallet, and a missing target means the
// frame is silently dropped.
type StreamService struct {
	ledger       *ledger.Ledger
	relay        *relay.Registry
	cache        domain.MarketCache
	broadcast    domain.Broadcaster
	bus          domain.SignalBus
	logger       *slog.Logger
	playbackBase string
}

// NewStreamService wires a StreamService. playbackBase is the public base URL
// the media server serves playlists from.
func NewStreamService(
	l *ledger.Ledger,
	registry *relay.Registry,
	cache domain.MarketCache,
	broadcast domain.Broadcaster,
	bus domain.SignalBus,
	logger *slog.Logger,
	playbackBase string,
) *StreamService {
	return &StreamService{
		ledger:       l,
		relay:        registry,
		cache:        cache,
		broadcast:    broadcast,
		bus:          bus,
		logger:       logger,
		playbackBase: playbackBase,
	}
}

// StartStream marks the market live. Only the creator may stream, and only on
// an active market; the ledger enforces both. The returned StreamInfo carries
// the stream key and goes to the creator alone.
func (s *StreamService) StartStream(ctx context.Context, wallet, marketID string) (StreamInfo, error) {
	if marketID == "" {
		return StreamInfo{}, fmt.Errorf("service: start stream: missing market id: %w", domain.ErrValidation)
	}

	key := uuid.New().String()
	playback, err := url.JoinPath(s.playbackBase, marketID, "index.m3u8")
	if err != nil {
		return StreamInfo{}, fmt.Errorf("service: start stream on %s: playback url: %w", marketID, err)
	}
	ls := domain.Livestream{
		IsLive:      true,
		StreamKey:   key,
		PlaybackURL: playback,
		RoomName:    "market-" + marketID,
	}

	m, err := s.ledger.SetLivestream(ctx, marketID, wallet, ls)
	if err != nil {
		return StreamInfo{}, err
	}

	s.relay.SetStreamer(marketID, wallet)
	s.invalidate(ctx, marketID)

	update := domain.StreamUpdate{MarketID: marketID, IsLive: true, PlaybackURL: playback}
	s.broadcast.BroadcastRoom(marketID, domain.EvStreamUpdate, update)
	PublishMirror(ctx, s.bus, s.logger, marketID, domain.EvStreamUpdate, update)

	s.logger.Info("service: stream started",
		slog.String("market_id", marketID),
		slog.String("wallet", wallet),
	)
	return StreamInfo{
		MarketID:    marketID,
		StreamKey:   key,
		PlaybackURL: m.Livestream.PlaybackURL,
		RoomName:    m.Livestream.RoomName,
	}, nil
}

// StopStream clears the market's livestream state, tears the relay session
// down entirely (viewers and negotiated peers included, so the next viewer
// join counts from zero) and tells the room the stream is over.
func (s *StreamService) StopStream(ctx context.Context, wallet, marketID string) error {
	if _, err := s.ledger.SetLivestream(ctx, marketID, wallet, domain.Livestream{}); err != nil {
		return err
	}

	if peers, had := s.relay.ClearStreamer(marketID); had {
		s.logger.Info("service: stream stopped",
			slog.String("market_id", marketID),
			slog.Int("peers_discarded", len(peers)),
		)
	}
	s.invalidate(ctx, marketID)

	update := domain.StreamUpdate{MarketID: marketID, IsLive: false}
	s.broadcast.BroadcastRoom(marketID, domain.EvStreamUpdate, update)
	PublishMirror(ctx, s.bus, s.logger, marketID, domain.EvStreamUpdate, update)
	return nil
}

// ViewerJoin registers a viewer on the market's stream and announces the new
// count. Rejoining without leaving does not inflate the count.
func (s *StreamService) ViewerJoin(ctx context.Context, wallet, marketID string) (int, error) {
	if wallet == "" {
		return 0, fmt.Errorf("service: viewer join: not authenticated: %w", domain.ErrUnauthorized)
	}

	count, added := s.relay.ViewerJoin(marketID, wallet)
	if added {
		s.broadcast.BroadcastRoom(marketID, domain.EvViewerJoined, domain.ViewerUpdate{
			MarketID:     marketID,
			ViewerWallet: wallet,
			ViewerCount:  count,
		})
	}
	return count, nil
}

// ViewerLeave removes a viewer from the market's stream.
func (s *StreamService) ViewerLeave(ctx context.Context, wallet, marketID string) (int, error) {
	count, removed := s.relay.ViewerLeave(marketID, wallet)
	if removed {
		s.broadcast.BroadcastRoom(marketID, domain.EvViewerLeft, domain.ViewerUpdate{
			MarketID:     marketID,
			ViewerWallet: wallet,
			ViewerCount:  count,
		})
	}
	return count, nil
}

// Forward relays a WebRTC negotiation payload to the target wallet. The
// payload is never inspected. A disconnected target is an expected race, not
// an error: the frame is dropped and the sender's ack still succeeds.
func (s *StreamService) Forward(from, target, marketID, event string, payload any) {
	if target == "" {
		return
	}
	delivered := s.broadcast.SendToWallet(target, event, domain.SignalPayload{
		MarketID:   marketID,
		FromWallet: from,
		Payload:    payload,
	})
	if !delivered {
		s.logger.Debug("service: signal target offline",
			slog.String("event", event),
			slog.String("target", target),
		)
	}
}

// TrackPeer records the negotiated peer handle for a viewer so StopStream can
// account for it.
func (s *StreamService) TrackPeer(marketID, viewer, handle string) {
	s.relay.TrackPeer(marketID, viewer, handle)
}

// RequestToJoin announces that a wallet wants to come on stream. The room
// carries the request; the streamer answers with AcceptJoin.
func (s *StreamService) RequestToJoin(wallet, marketID string) error {
	if wallet == "" {
		return fmt.Errorf("service: join request: not authenticated: %w", domain.ErrUnauthorized)
	}
	s.broadcast.BroadcastRoom(marketID, domain.EvJoinRequested, map[string]string{
		"market_id": marketID,
		"wallet":    wallet,
	})
	return nil
}

// AcceptJoin lets the live streamer invite a requester on stream. Only the
// current streamer may accept.
func (s *StreamService) AcceptJoin(wallet, marketID, target string) error {
	streamer, live := s.relay.Streamer(marketID)
	if !live {
		return fmt.Errorf("service: accept join on %s: no live stream: %w", marketID, domain.ErrNotFound)
	}
	if streamer != wallet {
		return fmt.Errorf("service: accept join on %s: wallet %s is not the streamer: %w", marketID, wallet, domain.ErrUnauthorized)
	}

	s.broadcast.SendToWallet(target, domain.EvJoinAccepted, map[string]string{
		"market_id": marketID,
		"wallet":    wallet,
	})
	return nil
}

func (s *StreamService) invalidate(ctx context.Context, marketID string) {
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

// HandleDisconnect tears down whatever stream state a departed wallet left
// behind: streams it ran stop, streams it watched lose a viewer.
func (s *StreamService) HandleDisconnect(wallet string) {
	streaming, viewing := s.relay.Roles(wallet)
	ctx := context.Background()

	for _, marketID := range streaming {
		if err := s.StopStream(ctx, wallet, marketID); err != nil {
			s.logger.Warn("service: stop stream on disconnect",
				slog.String("market_id", marketID),
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
			// Persisting the stop failed; drop the in-memory session anyway.
			s.relay.ClearStreamer(marketID)
		}
	}
	for _, marketID := range viewing {
		_, _ = s.ViewerLeave(ctx, wallet, marketID)
	}
}
