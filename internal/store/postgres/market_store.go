package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MixasV/werpool/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, ledger_id, slug, title, description, state, category,
	tags, scheduled_start_at, trading_lock_at,
	pool_id, pool_token_symbol, pool_total_liquidity, pool_fee_bps,
	created_at, closed_at`

// Create inserts the market aggregate: the market row plus its outcomes and
// any initial workflow actions, in one transaction.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("postgres: marshal market tags: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create market: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var poolID, poolSymbol *string
	var poolLiquidity *float64
	var poolFeeBps *int
	if m.LiquidityPool != nil {
		poolID = &m.LiquidityPool.ID
		poolSymbol = &m.LiquidityPool.TokenSymbol
		poolLiquidity = &m.LiquidityPool.TotalLiquidity
		poolFeeBps = &m.LiquidityPool.FeeBps
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO markets (
			id, ledger_id, slug, title, description, state, category,
			tags, scheduled_start_at, trading_lock_at,
			pool_id, pool_token_symbol, pool_total_liquidity, pool_fee_bps,
			created_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		m.ID, m.LedgerID, m.Slug, m.Title, m.Description, m.State, m.Category,
		tags, m.Schedule.ScheduledStartAt, m.Schedule.TradingLockAt,
		poolID, poolSymbol, poolLiquidity, poolFeeBps,
		m.CreatedAt, m.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert market: %w", err)
	}

	for _, o := range m.Outcomes {
		_, err = tx.Exec(ctx, `
			INSERT INTO market_outcomes (id, market_id, idx, label, status, implied_probability)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, m.ID, o.Index, o.Label, o.Status, o.ImpliedProbability,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert outcome %d: %w", o.Index, err)
		}
	}

	for _, a := range m.Workflow {
		metadata, err := json.Marshal(metadataOrEmpty(a.Metadata))
		if err != nil {
			return fmt.Errorf("postgres: marshal workflow metadata: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO workflow_actions (id, market_id, action_type, status, description, triggers_at, executed_at, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, m.ID, a.Type, a.Status, a.Description, a.TriggersAt, a.ExecutedAt, metadata,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert workflow action: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit create market: %w", err)
	}
	return nil
}

// GetByID loads the full market aggregate.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return s.getBy(ctx, "id = $1", id)
}

// GetByLedgerID loads the market aggregate by its on-ledger identifier.
func (s *MarketStore) GetByLedgerID(ctx context.Context, ledgerID uint64) (domain.Market, error) {
	return s.getBy(ctx, "ledger_id = $1", ledgerID)
}

// GetBySlug loads the market aggregate by slug.
func (s *MarketStore) GetBySlug(ctx context.Context, slug string) (domain.Market, error) {
	return s.getBy(ctx, "slug = $1", slug)
}

func (s *MarketStore) getBy(ctx context.Context, where string, arg any) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE `+where, arg)

	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("%w: market %v", domain.ErrNotFound, arg)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market: %w", err)
	}

	if err := s.loadAssociations(ctx, &m); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// List returns markets ordered by creation time, newest first.
func (s *MarketStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}

	for i := range markets {
		if err := s.loadAssociations(ctx, &markets[i]); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

// UpdateState moves the market to a new lifecycle state, optionally stamping
// the close time.
func (s *MarketStore) UpdateState(ctx context.Context, id string, state domain.MarketState, closedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET state = $2, closed_at = COALESCE($3, closed_at) WHERE id = $1`,
		id, state, closedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %s", domain.ErrNotFound, id)
	}
	return nil
}

// SetLiquidityPool attaches a created pool to the market.
func (s *MarketStore) SetLiquidityPool(ctx context.Context, id string, pool domain.LiquidityPool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets
		SET pool_id = $2, pool_token_symbol = $3, pool_total_liquidity = $4, pool_fee_bps = $5
		WHERE id = $1`,
		id, pool.ID, pool.TokenSymbol, pool.TotalLiquidity, pool.FeeBps,
	)
	if err != nil {
		return fmt.Errorf("postgres: set liquidity pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %s", domain.ErrNotFound, id)
	}
	return nil
}

// UpsertSettlement records or replaces the market's settlement. Replacement
// happens only through the override path, which carries a reason.
func (s *MarketStore) UpsertSettlement(ctx context.Context, settlement domain.Settlement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO settlements (id, market_id, resolved_outcome_id, tx_id, settled_at, notes, override_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (market_id) DO UPDATE SET
			resolved_outcome_id = EXCLUDED.resolved_outcome_id,
			tx_id = EXCLUDED.tx_id,
			settled_at = EXCLUDED.settled_at,
			notes = EXCLUDED.notes,
			override_reason = EXCLUDED.override_reason`,
		settlement.ID, settlement.MarketID, settlement.ResolvedOutcomeID,
		settlement.TxID, settlement.SettledAt, settlement.Notes, settlement.OverrideReason,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert settlement: %w", err)
	}
	return nil
}

// AddPatrolSignal records a risk marker against the market.
func (s *MarketStore) AddPatrolSignal(ctx context.Context, signal domain.PatrolSignal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO patrol_signals (id, market_id, issuer, severity, code, weight, notes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		signal.ID, signal.MarketID, signal.Issuer, signal.Severity, signal.Code,
		signal.Weight, signal.Notes, signal.CreatedAt, signal.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: add patrol signal: %w", err)
	}
	return nil
}

// DeletePatrolSignal removes a risk marker.
func (s *MarketStore) DeletePatrolSignal(ctx context.Context, marketID, signalID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM patrol_signals WHERE market_id = $1 AND id = $2`,
		marketID, signalID,
	)
	if err != nil {
		return fmt.Errorf("postgres: delete patrol signal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: patrol signal %s", domain.ErrNotFound, signalID)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m          domain.Market
		tags       []byte
		poolID     *string
		poolSymbol *string
		poolLiq    *float64
		poolFeeBps *int
	)
	err := row.Scan(
		&m.ID, &m.LedgerID, &m.Slug, &m.Title, &m.Description, &m.State, &m.Category,
		&tags, &m.Schedule.ScheduledStartAt, &m.Schedule.TradingLockAt,
		&poolID, &poolSymbol, &poolLiq, &poolFeeBps,
		&m.CreatedAt, &m.ClosedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &m.Tags); err != nil {
			return domain.Market{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if poolID != nil {
		m.LiquidityPool = &domain.LiquidityPool{ID: *poolID}
		if poolSymbol != nil {
			m.LiquidityPool.TokenSymbol = *poolSymbol
		}
		if poolLiq != nil {
			m.LiquidityPool.TotalLiquidity = *poolLiq
		}
		if poolFeeBps != nil {
			m.LiquidityPool.FeeBps = *poolFeeBps
		}
	}
	return m, nil
}

func (s *MarketStore) loadAssociations(ctx context.Context, m *domain.Market) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, idx, label, status, implied_probability
		FROM market_outcomes WHERE market_id = $1 ORDER BY idx`, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: load outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ID, &o.Index, &o.Label, &o.Status, &o.ImpliedProbability); err != nil {
			return fmt.Errorf("postgres: scan outcome: %w", err)
		}
		m.Outcomes = append(m.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: load outcomes: %w", err)
	}

	wfRows, err := s.pool.Query(ctx, `
		SELECT id, market_id, action_type, status, description, triggers_at, executed_at, metadata
		FROM workflow_actions WHERE market_id = $1 ORDER BY triggers_at NULLS LAST`, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: load workflow actions: %w", err)
	}
	defer wfRows.Close()
	for wfRows.Next() {
		a, err := scanWorkflowAction(wfRows)
		if err != nil {
			return fmt.Errorf("postgres: scan workflow action: %w", err)
		}
		m.Workflow = append(m.Workflow, a)
	}
	if err := wfRows.Err(); err != nil {
		return fmt.Errorf("postgres: load workflow actions: %w", err)
	}

	var settlement domain.Settlement
	err = s.pool.QueryRow(ctx, `
		SELECT id, market_id, resolved_outcome_id, tx_id, settled_at, notes, override_reason
		FROM settlements WHERE market_id = $1`, m.ID).Scan(
		&settlement.ID, &settlement.MarketID, &settlement.ResolvedOutcomeID,
		&settlement.TxID, &settlement.SettledAt, &settlement.Notes, &settlement.OverrideReason,
	)
	switch {
	case err == nil:
		m.Settlement = &settlement
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return fmt.Errorf("postgres: load settlement: %w", err)
	}

	sigRows, err := s.pool.Query(ctx, `
		SELECT id, market_id, issuer, severity, code, weight, notes, created_at, expires_at
		FROM patrol_signals WHERE market_id = $1 ORDER BY created_at`, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: load patrol signals: %w", err)
	}
	defer sigRows.Close()
	for sigRows.Next() {
		var sig domain.PatrolSignal
		if err := sigRows.Scan(
			&sig.ID, &sig.MarketID, &sig.Issuer, &sig.Severity, &sig.Code,
			&sig.Weight, &sig.Notes, &sig.CreatedAt, &sig.ExpiresAt,
		); err != nil {
			return fmt.Errorf("postgres: scan patrol signal: %w", err)
		}
		m.PatrolSignals = append(m.PatrolSignals, sig)
	}
	if err := sigRows.Err(); err != nil {
		return fmt.Errorf("postgres: load patrol signals: %w", err)
	}

	return nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
