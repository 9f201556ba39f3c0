package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MixasV/werpool/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, market_id, market_slug, outcome_id, outcome_label, outcome_idx,
	shares, flow_amount, is_buy, probabilities, max_flow_amount,
	transaction_id, signer, network, created_at`

// Insert appends one executed trade to the history.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	probabilities, err := json.Marshal(t.Probabilities)
	if err != nil {
		return fmt.Errorf("postgres: marshal trade probabilities: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (
			id, market_id, market_slug, outcome_id, outcome_label, outcome_idx,
			shares, flow_amount, is_buy, probabilities, max_flow_amount,
			transaction_id, signer, network, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.MarketID, t.MarketSlug, t.OutcomeID, t.OutcomeLabel, t.OutcomeIndex,
		t.Shares, t.FlowAmount, t.IsBuy, probabilities, t.MaxFlowAmount,
		t.TransactionID, t.Signer, t.Network, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// ListByMarket returns trades for a given market with pagination and optional
// time filtering, newest first.
func (s *TradeStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list trades by market: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by market: %w", err)
	}
	return trades, nil
}

// NetPosition returns the signer's buy-minus-sell ledger amount across all
// trades in the market. Zero when the signer has no trades.
func (s *TradeStore) NetPosition(ctx context.Context, marketID, signer string) (float64, error) {
	var net *float64
	err := s.pool.QueryRow(ctx, `
		SELECT SUM(CASE WHEN is_buy THEN flow_amount ELSE -flow_amount END)
		FROM trades WHERE market_id = $1 AND signer = $2`,
		marketID, signer,
	).Scan(&net)
	if err != nil {
		return 0, fmt.Errorf("postgres: net position: %w", err)
	}
	if net == nil {
		return 0, nil
	}
	return *net, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t             domain.Trade
			probabilities []byte
		)
		if err := rows.Scan(
			&t.ID, &t.MarketID, &t.MarketSlug, &t.OutcomeID, &t.OutcomeLabel, &t.OutcomeIndex,
			&t.Shares, &t.FlowAmount, &t.IsBuy, &probabilities, &t.MaxFlowAmount,
			&t.TransactionID, &t.Signer, &t.Network, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(probabilities) > 0 {
			if err := json.Unmarshal(probabilities, &t.Probabilities); err != nil {
				return nil, fmt.Errorf("unmarshal probabilities: %w", err)
			}
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
