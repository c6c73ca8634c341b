package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcusleung/memecast/internal/domain"
	"github.com/marcusleung/memecast/internal/ledger"
	"github.com/marcusleung/memecast/internal/server/ws"
	"github.com/marcusleung/memecast/internal/service"
)

// Events binds the WebSocket event names to service calls. It owns no state
// of its own; everything flows through the hub and the services.
type Events struct {
	hub     *ws.Hub
	markets *service.MarketService
	trades  *service.TradeService
	streams *service.StreamService
	logger  *slog.Logger
}

// NewEvents creates the event bindings.
func NewEvents(
	hub *ws.Hub,
	markets *service.MarketService,
	trades *service.TradeService,
	streams *service.StreamService,
	logger *slog.Logger,
) *Events {
	return &Events{
		hub:     hub,
		markets: markets,
		trades:  trades,
		streams: streams,
		logger:  logger,
	}
}

// Register installs every event handler on the router. Call once during
// wiring, before the hub accepts connections.
func (e *Events) Register(r *ws.Router) {
	r.Handle(domain.EvAuth, e.auth)
	r.Handle(domain.EvCreateMarket, e.createMarket)
	r.Handle(domain.EvJoinMarket, e.joinMarket)
	r.Handle(domain.EvLeaveMarket, e.leaveMarket)
	r.Handle(domain.EvBuyShares, e.buyShares)
	r.Handle(domain.EvGetMarkets, e.getMarkets)
	r.Handle(domain.EvGetMarketDetail, e.getMarketDetail)
	r.Handle(domain.EvGetPriceHistory, e.getPriceHistory)
	r.Handle(domain.EvGetUserProfile, e.getUserProfile)
	r.Handle(domain.EvCancelMarket, e.cancelMarket)
	r.Handle(domain.EvStartStream, e.startStream)
	r.Handle(domain.EvStopStream, e.stopStream)
	r.Handle(domain.EvViewerJoin, e.viewerJoin)
	r.Handle(domain.EvViewerLeave, e.viewerLeave)
	r.Handle(domain.EvOffer, e.signal(domain.EvOffer))
	r.Handle(domain.EvAnswer, e.signal(domain.EvAnswer))
	r.Handle(domain.EvICECandidate, e.signal(domain.EvICECandidate))
	r.Handle(domain.EvRequestToJoin, e.requestToJoin)
	r.Handle(domain.EvAcceptJoin, e.acceptJoin)
}

// decode unmarshals an event payload, mapping malformed JSON to a
// validation error.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload: %w", domain.ErrValidation)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed payload: %w", domain.ErrValidation)
	}
	return nil
}

// requireWallet returns the connection's authenticated wallet or an
// unauthorized error.
func requireWallet(c *ws.Client) (string, error) {
	wallet := c.Wallet()
	if wallet == "" {
		return "", fmt.Errorf("authenticate first: %w", domain.ErrUnauthorized)
	}
	return wallet, nil
}

func (e *Events) auth(_ context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	req.Wallet = strings.TrimSpace(req.Wallet)
	if req.Wallet == "" {
		return nil, fmt.Errorf("auth: missing wallet: %w", domain.ErrValidation)
	}

	e.hub.Authenticate(c, req.Wallet)
	return map[string]any{"wallet": req.Wallet, "authenticated": true}, nil
}

func (e *Events) createMarket(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		Title         string            `json:"title"`
		Ticker        string            `json:"ticker"`
		Description   string            `json:"description"`
		MediaURL      string            `json:"media_url"`
		BannerURL     string            `json:"banner_url"`
		SocialLinks   map[string]string `json:"social_links"`
		DurationHours int               `json:"duration_hours"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	view, err := e.markets.Create(ctx, ledger.CreateParams{
		Creator:       wallet,
		Title:         strings.TrimSpace(req.Title),
		Ticker:        strings.TrimSpace(req.Ticker),
		Description:   req.Description,
		MediaURL:      req.MediaURL,
		BannerURL:     req.BannerURL,
		SocialLinks:   req.SocialLinks,
		DurationHours: req.DurationHours,
	})
	if err != nil {
		return nil, err
	}

	// The creator follows their own market from the start.
	e.hub.JoinRoom(c, view.ID)
	return view, nil
}

// joinMarket subscribes the connection to a market's room. When the request
// carries a side and a quantity, the join doubles as a buy: new participants
// pick a side as they walk in.
func (e *Events) joinMarket(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		MarketID string      `json:"market_id"`
		Side     domain.Side `json:"side"`
		Shares   float64     `json:"shares"`
		Amount   float64     `json:"amount"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.MarketID == "" {
		return nil, fmt.Errorf("join_market: missing market id: %w", domain.ErrValidation)
	}

	view, err := e.markets.Detail(ctx, req.MarketID)
	if err != nil {
		return nil, err
	}

	e.hub.JoinRoom(c, req.MarketID)

	resp := map[string]any{"market": view}
	if req.Side != "" && (req.Shares > 0 || req.Amount > 0) {
		wallet, err := requireWallet(c)
		if err != nil {
			return nil, err
		}
		receipt, err := e.trades.Buy(ctx, wallet, service.BuyParams{
			MarketID: req.MarketID,
			Side:     req.Side,
			Shares:   req.Shares,
			Amount:   req.Amount,
		})
		if err != nil {
			return nil, err
		}
		resp["trade"] = receipt
	}
	return resp, nil
}

func (e *Events) leaveMarket(_ context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.MarketID == "" {
		return nil, fmt.Errorf("leave_market: missing market id: %w", domain.ErrValidation)
	}

	e.hub.LeaveRoom(c, req.MarketID)
	return map[string]string{"market_id": req.MarketID}, nil
}

func (e *Events) buyShares(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string      `json:"market_id"`
		Wallet   string      `json:"wallet"`
		Side     domain.Side `json:"side"`
		Shares   float64     `json:"shares"`
		Amount   float64     `json:"amount"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	receipt, err := e.trades.Buy(ctx, wallet, service.BuyParams{
		MarketID: req.MarketID,
		Wallet:   req.Wallet,
		Side:     req.Side,
		Shares:   req.Shares,
		Amount:   req.Amount,
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (e *Events) getMarkets(ctx context.Context, _ *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		Status string `json:"status"`
		Search string `json:"search"`
		Sort   string `json:"sort"`
		Page   int    `json:"page"`
		Limit  int    `json:"limit"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("malformed payload: %w", domain.ErrValidation)
		}
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}
	if req.Page < 1 {
		req.Page = 1
	}

	return e.markets.List(ctx, domain.ListOpts{
		Status: domain.MarketStatus(req.Status),
		Search: req.Search,
		Sort:   req.Sort,
		Limit:  req.Limit,
		Offset: (req.Page - 1) * req.Limit,
	})
}

func (e *Events) getMarketDetail(ctx context.Context, _ *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return e.markets.Detail(ctx, req.MarketID)
}

func (e *Events) getPriceHistory(ctx context.Context, _ *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		MarketID string `json:"market_id"`
		Limit    int    `json:"limit"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	points, err := e.markets.PriceHistory(ctx, req.MarketID, req.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"market_id": req.MarketID, "points": points}, nil
}

func (e *Events) getUserProfile(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	var req struct {
		Wallet string `json:"wallet"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("malformed payload: %w", domain.ErrValidation)
		}
	}
	if req.Wallet == "" {
		req.Wallet = c.Wallet()
	}
	return e.markets.Profile(ctx, req.Wallet)
}

func (e *Events) cancelMarket(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return e.markets.Cancel(ctx, req.MarketID, wallet)
}

func (e *Events) startStream(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	return e.streams.StartStream(ctx, wallet, req.MarketID)
}

func (e *Events) stopStream(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := e.streams.StopStream(ctx, wallet, req.MarketID); err != nil {
		return nil, err
	}
	return map[string]string{"market_id": req.MarketID}, nil
}

func (e *Events) viewerJoin(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	count, err := e.streams.ViewerJoin(ctx, wallet, req.MarketID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"market_id": req.MarketID, "viewer_count": count}, nil
}

func (e *Events) viewerLeave(ctx context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}

	count, err := e.streams.ViewerLeave(ctx, wallet, req.MarketID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"market_id": req.MarketID, "viewer_count": count}, nil
}

// signal builds the forwarding handler shared by offer, answer and ICE
// events. The payload goes through untouched; only the envelope is parsed.
func (e *Events) signal(event string) ws.HandlerFunc {
	return func(_ context.Context, c *ws.Client, data json.RawMessage) (any, error) {
		wallet, err := requireWallet(c)
		if err != nil {
			return nil, err
		}

		var req struct {
			MarketID     string          `json:"market_id"`
			TargetWallet string          `json:"target_wallet"`
			PeerID       string          `json:"peer_id"`
			Payload      json.RawMessage `json:"payload"`
		}
		if err := decode(data, &req); err != nil {
			return nil, err
		}
		if req.TargetWallet == "" {
			return nil, fmt.Errorf("%s: missing target wallet: %w", event, domain.ErrValidation)
		}

		if event == domain.EvAnswer && req.PeerID != "" {
			e.streams.TrackPeer(req.MarketID, wallet, req.PeerID)
		}
		e.streams.Forward(wallet, req.TargetWallet, req.MarketID, event, req.Payload)
		return map[string]string{"target_wallet": req.TargetWallet}, nil
	}
}

func (e *Events) requestToJoin(_ context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string `json:"market_id"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if err := e.streams.RequestToJoin(wallet, req.MarketID); err != nil {
		return nil, err
	}
	return map[string]string{"market_id": req.MarketID}, nil
}

func (e *Events) acceptJoin(_ context.Context, c *ws.Client, data json.RawMessage) (any, error) {
	wallet, err := requireWallet(c)
	if err != nil {
		return nil, err
	}

	var req struct {
		MarketID string `json:"market_id"`
		Wallet   string `json:"wallet"`
	}
	if err := decode(data, &req); err != nil {
		return nil, err
	}
	if req.Wallet == "" {
		return nil, fmt.Errorf("accept_join_request: missing wallet: %w", domain.ErrValidation)
	}
	if err := e.streams.AcceptJoin(wallet, req.MarketID, req.Wallet); err != nil {
		return nil, err
	}
	return map[string]string{"market_id": req.MarketID, "wallet": req.Wallet}, nil
}
