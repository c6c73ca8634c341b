package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcusleung/memecast/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, creator, title, ticker, description, media_url, banner_url,
	social_links, bullish_supply, fade_supply, bullish_price, fade_price,
	pool_balance, revenue_total, revenue_withdrawable,
	start_time, end_time, duration_hours, status, final_result, buys,
	is_live, stream_key, playback_url, room_name, created_at, updated_at`

// Insert writes a brand-new market row.
func (s *MarketStore) Insert(ctx context.Context, m domain.Market) error {
	links, buys, err := encodeJSONCols(m)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO markets (` + marketCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26, $27)`

	_, err = s.pool.Exec(ctx, query,
		m.ID, m.Creator, m.Title, m.Ticker, m.Description, m.MediaURL, m.BannerURL,
		links, m.BullishSupply, m.FadeSupply, m.BullishPrice, m.FadePrice,
		m.PoolBalance, m.CreatorRevenue.TotalEarned, m.CreatorRevenue.Withdrawable,
		m.StartTime, m.EndTime, m.DurationHours, string(m.Status), string(m.FinalResult), buys,
		m.Livestream.IsLive, m.Livestream.StreamKey, m.Livestream.PlaybackURL, m.Livestream.RoomName,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market %s: %w", m.ID, err)
	}
	return nil
}

// Update writes the mutable fields of a market. Identity and end_time are
// immutable after creation and are deliberately not part of the SET list.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	links, buys, err := encodeJSONCols(m)
	if err != nil {
		return err
	}

	const query = `
		UPDATE markets SET
			bullish_supply       = $2,
			fade_supply          = $3,
			bullish_price        = $4,
			fade_price           = $5,
			pool_balance         = $6,
			revenue_total        = $7,
			revenue_withdrawable = $8,
			status               = $9,
			final_result         = $10,
			social_links         = $11,
			buys                 = $12,
			is_live              = $13,
			stream_key           = $14,
			playback_url         = $15,
			room_name            = $16,
			updated_at           = $17
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID,
		m.BullishSupply, m.FadeSupply, m.BullishPrice, m.FadePrice,
		m.PoolBalance, m.CreatorRevenue.TotalEarned, m.CreatorRevenue.Withdrawable,
		string(m.Status), string(m.FinalResult), links, buys,
		m.Livestream.IsLive, m.Livestream.StreamKey, m.Livestream.PlaybackURL, m.Livestream.RoomName,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get retrieves a market by its primary key.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// List returns markets matching opts plus the total match count.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, int64, error) {
	where := " WHERE TRUE"
	args := []any{}
	argIdx := 1

	if opts.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.Search != "" {
		where += fmt.Sprintf(" AND (title ILIKE $%d OR ticker ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+opts.Search+"%")
		argIdx++
	}

	var total int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count markets: %w", err)
	}

	order := " ORDER BY created_at DESC"
	switch opts.Sort {
	case "ending_soon":
		order = " ORDER BY end_time ASC"
	case "pool":
		order = " ORDER BY pool_balance DESC"
	}

	query := `SELECT ` + marketCols + ` FROM markets` + where + order
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarkets(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list markets: %w", err)
	}
	return markets, total, nil
}

// ListActive returns every market that still accepts trades. Used by the
// lifecycle sweeper on each pass.
func (s *MarketStore) ListActive(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets WHERE status = 'active' ORDER BY end_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	return markets, nil
}

func encodeJSONCols(m domain.Market) (links, buys []byte, err error) {
	socialLinks := m.SocialLinks
	if socialLinks == nil {
		socialLinks = map[string]string{}
	}
	links, err = json.Marshal(socialLinks)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal social links for %s: %w", m.ID, err)
	}

	records := m.Buys
	if records == nil {
		records = []domain.BuyRecord{}
	}
	buys, err = json.Marshal(records)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal buys for %s: %w", m.ID, err)
	}
	return links, buys, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status, result string
	var links, buys []byte

	err := row.Scan(
		&m.ID, &m.Creator, &m.Title, &m.Ticker, &m.Description, &m.MediaURL, &m.BannerURL,
		&links, &m.BullishSupply, &m.FadeSupply, &m.BullishPrice, &m.FadePrice,
		&m.PoolBalance, &m.CreatorRevenue.TotalEarned, &m.CreatorRevenue.Withdrawable,
		&m.StartTime, &m.EndTime, &m.DurationHours, &status, &result, &buys,
		&m.Livestream.IsLive, &m.Livestream.StreamKey, &m.Livestream.PlaybackURL, &m.Livestream.RoomName,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Status = domain.MarketStatus(status)
	m.FinalResult = domain.FinalResult(result)
	if err := json.Unmarshal(links, &m.SocialLinks); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal social links: %w", err)
	}
	if err := json.Unmarshal(buys, &m.Buys); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal buys: %w", err)
	}
	return m, nil
}

func scanMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return markets, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
