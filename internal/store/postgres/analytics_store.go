package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MixasV/werpool/internal/domain"
)

// AnalyticsStore implements domain.AnalyticsStore using PostgreSQL. Each trade
// folds into one row per (market, outcome, interval, bucket); the upsert keeps
// OHLC, volumes, and counts current without a separate aggregation job.
type AnalyticsStore struct {
	pool *pgxpool.Pool
}

var _ domain.AnalyticsStore = (*AnalyticsStore)(nil)

// NewAnalyticsStore creates a new AnalyticsStore backed by the given connection pool.
func NewAnalyticsStore(pool *pgxpool.Pool) *AnalyticsStore {
	return &AnalyticsStore{pool: pool}
}

const analyticsSelectCols = `id, market_id, outcome_id, outcome_idx, outcome_label,
	bucket_interval, bucket_start, bucket_end,
	open_price, close_price, high_price, low_price, average_price,
	volume_shares, volume_flow, net_flow, trade_count, updated_at`

// UpsertTrade folds one trade sample into its bucket and returns the updated
// snapshot. The first trade of a bucket sets the open; every trade moves the
// close.
func (s *AnalyticsStore) UpsertTrade(ctx context.Context, interval domain.AnalyticsInterval, sample domain.TradeSample) (domain.AnalyticsSnapshot, error) {
	bucketStart := interval.Truncate(sample.OccurredAt)
	bucketEnd := bucketStart.Add(interval.Width())

	signedFlow := sample.FlowAmount
	if !sample.IsBuy {
		signedFlow = -signedFlow
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO analytics_snapshots (
			id, market_id, outcome_id, outcome_idx, outcome_label,
			bucket_interval, bucket_start, bucket_end,
			open_price, close_price, high_price, low_price, average_price,
			volume_shares, volume_flow, net_flow, trade_count, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $9, $9, $9, $9,
			$10, $11, $12, 1, NOW()
		)
		ON CONFLICT (market_id, outcome_idx, bucket_interval, bucket_start) DO UPDATE SET
			close_price = EXCLUDED.close_price,
			high_price = GREATEST(analytics_snapshots.high_price, EXCLUDED.close_price),
			low_price = LEAST(analytics_snapshots.low_price, EXCLUDED.close_price),
			average_price = (analytics_snapshots.average_price * analytics_snapshots.trade_count + EXCLUDED.close_price)
				/ (analytics_snapshots.trade_count + 1),
			volume_shares = analytics_snapshots.volume_shares + EXCLUDED.volume_shares,
			volume_flow = analytics_snapshots.volume_flow + EXCLUDED.volume_flow,
			net_flow = analytics_snapshots.net_flow + EXCLUDED.net_flow,
			trade_count = analytics_snapshots.trade_count + 1,
			updated_at = NOW()
		RETURNING `+analyticsSelectCols,
		uuid.NewString(), sample.MarketID, sample.OutcomeID, sample.OutcomeIndex, sample.OutcomeLabel,
		interval, bucketStart, bucketEnd,
		sample.Probability,
		sample.Shares, sample.FlowAmount, signedFlow,
	)

	var snap domain.AnalyticsSnapshot
	err := row.Scan(
		&snap.ID, &snap.MarketID, &snap.OutcomeID, &snap.OutcomeIndex, &snap.OutcomeLabel,
		&snap.Interval, &snap.BucketStart, &snap.BucketEnd,
		&snap.OpenPrice, &snap.ClosePrice, &snap.HighPrice, &snap.LowPrice, &snap.AveragePrice,
		&snap.VolumeShares, &snap.VolumeFlow, &snap.NetFlow, &snap.TradeCount, &snap.UpdatedAt,
	)
	if err != nil {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("postgres: upsert analytics snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns bucketed snapshots for a market, newest bucket first,
// optionally filtered to one outcome.
func (s *AnalyticsStore) ListSnapshots(ctx context.Context, marketID string, interval domain.AnalyticsInterval, outcomeIndex *int, opts domain.ListOpts) ([]domain.AnalyticsSnapshot, error) {
	query := `SELECT ` + analyticsSelectCols + `
		FROM analytics_snapshots WHERE market_id = $1 AND bucket_interval = $2`
	args := []any{marketID, interval}
	argIdx := 3

	if outcomeIndex != nil {
		query += fmt.Sprintf(" AND outcome_idx = $%d", argIdx)
		args = append(args, *outcomeIndex)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND bucket_start >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND bucket_start <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY bucket_start DESC, outcome_idx"

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
		return nil, fmt.Errorf("postgres: list analytics snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.AnalyticsSnapshot
	for rows.Next() {
		var snap domain.AnalyticsSnapshot
		if err := rows.Scan(
			&snap.ID, &snap.MarketID, &snap.OutcomeID, &snap.OutcomeIndex, &snap.OutcomeLabel,
			&snap.Interval, &snap.BucketStart, &snap.BucketEnd,
			&snap.OpenPrice, &snap.ClosePrice, &snap.HighPrice, &snap.LowPrice, &snap.AveragePrice,
			&snap.VolumeShares, &snap.VolumeFlow, &snap.NetFlow, &snap.TradeCount, &snap.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan analytics snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list analytics snapshots: %w", err)
	}
	return snaps, nil
}
