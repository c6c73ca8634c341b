package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/marcusleung/memecast/internal/domain"
)

// HandlerFunc processes one inbound event. The returned value, if any, is
// attached to the ack as its data field.
type HandlerFunc func(ctx context.Context, c *Client, data json.RawMessage) (any, error)

// Router maps event names to handlers. Registration happens during wiring,
// before any connection is accepted, so lookups need no locking.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers fn for the given event name.
func (r *Router) Handle(event string, fn HandlerFunc) {
	r.handlers[event] = fn
}

// dispatch runs the handler for env and returns the ack to send, or nil when
// the client did not request one.
func (r *Router) dispatch(ctx context.Context, c *Client, env Envelope) *Ack {
	fn, ok := r.handlers[env.Event]
	if !ok {
		r.logger.Warn("ws: unknown event", slog.String("event", env.Event))
		if env.ID == 0 {
			return nil
		}
		return &Ack{ID: env.ID, Error: "unknown event: " + env.Event}
	}

	data, err := fn(ctx, c, env.Data)
	if err != nil {
		r.logger.Debug("ws: event failed",
			slog.String("event", env.Event),
			slog.String("error", err.Error()),
		)
		if env.ID == 0 {
			return nil
		}
		return &Ack{ID: env.ID, Error: ackError(err)}
	}

	if env.ID == 0 {
		return nil
	}
	return &Ack{ID: env.ID, OK: true, Data: data}
}

// ackError maps an error chain to the stable string reported to clients.
// Internal detail stays in the server log.
func ackError(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation_error"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrMarketInactive):
		return "market_inactive"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrAlreadyExists):
		return "already_exists"
	default:
		return "store_error"
	}
}
