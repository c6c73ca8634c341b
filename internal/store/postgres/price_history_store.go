package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcusleung/memecast/internal/domain"
)

// PriceHistoryStore implements domain.PriceHistoryStore using PostgreSQL.
type PriceHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPriceHistoryStore creates a PriceHistoryStore backed by the given pool.
func NewPriceHistoryStore(pool *pgxpool.Pool) *PriceHistoryStore {
	return &PriceHistoryStore{pool: pool}
}

// Insert appends one price snapshot.
func (s *PriceHistoryStore) Insert(ctx context.Context, snap domain.PriceSnapshot) error {
	const query = `
		INSERT INTO price_history (market_id, bullish_supply, fade_supply, bullish_price, fade_price, pool_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		snap.MarketID, snap.BullishSupply, snap.FadeSupply,
		snap.BullishPrice, snap.FadePrice, snap.PoolBalance, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert price snapshot for %s: %w", snap.MarketID, err)
	}
	return nil
}

// ListByMarket returns snapshots for a market in chronological order.
func (s *PriceHistoryStore) ListByMarket(ctx context.Context, marketID string, limit int) ([]domain.PriceSnapshot, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, market_id, bullish_supply, fade_supply, bullish_price, fade_price, pool_balance, created_at
		FROM price_history WHERE market_id = $1
		ORDER BY created_at ASC LIMIT $2`, marketID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list price history for %s: %w", marketID, err)
	}
	defer rows.Close()

	var snaps []domain.PriceSnapshot
	for rows.Next() {
		var p domain.PriceSnapshot
		if err := rows.Scan(&p.ID, &p.MarketID, &p.BullishSupply, &p.FadeSupply,
			&p.BullishPrice, &p.FadePrice, &p.PoolBalance, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan price snapshot: %w", err)
		}
		snaps = append(snaps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list price history rows: %w", err)
	}
	return snaps, nil
}

// Compile-time interface check.
var _ domain.PriceHistoryStore = (*PriceHistoryStore)(nil)
