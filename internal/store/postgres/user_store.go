package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcusleung/memecast/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// AddCreatedMarket registers marketID under the wallet's profile. The array
// append only fires when the id is not already present, which gives
// set-union semantics without a read-modify-write round trip.
func (s *UserStore) AddCreatedMarket(ctx context.Context, wallet, marketID string) error {
	const query = `
		INSERT INTO users (wallet, created_markets)
		VALUES ($1, ARRAY[$2])
		ON CONFLICT (wallet) DO UPDATE SET
			created_markets = CASE
				WHEN users.created_markets @> EXCLUDED.created_markets THEN users.created_markets
				ELSE users.created_markets || EXCLUDED.created_markets
			END,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, wallet, marketID); err != nil {
		return fmt.Errorf("postgres: add created market %s to %s: %w", marketID, wallet, err)
	}
	return nil
}

// Get retrieves a wallet's profile.
func (s *UserStore) Get(ctx context.Context, wallet string) (domain.UserProfile, error) {
	var u domain.UserProfile
	err := s.pool.QueryRow(ctx, `
		SELECT wallet, created_markets, created_at, updated_at
		FROM users WHERE wallet = $1`, wallet,
	).Scan(&u.Wallet, &u.CreatedMarkets, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, domain.ErrNotFound
		}
		return domain.UserProfile{}, fmt.Errorf("postgres: get user %s: %w", wallet, err)
	}
	return u, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
