package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MixasV/werpool/internal/domain"
)

// PoolStateStore implements domain.PoolStateRecordStore using PostgreSQL.
// Vectors are stored as JSON arrays of numbers; a stored entry that fails to
// decode as a finite number surfaces as ErrCorruptState rather than a zero.
type PoolStateStore struct {
	pool *pgxpool.Pool
}

var _ domain.PoolStateRecordStore = (*PoolStateStore)(nil)

// NewPoolStateStore creates a new PoolStateStore backed by the given connection pool.
func NewPoolStateStore(pool *pgxpool.Pool) *PoolStateStore {
	return &PoolStateStore{pool: pool}
}

// Get loads the durable pool state record for a market.
func (s *PoolStateStore) Get(ctx context.Context, ledgerID uint64) (domain.PoolState, error) {
	var (
		state         domain.PoolState
		bVector       string
		outcomeSupply string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT liquidity_parameter, total_liquidity, b_vector, outcome_supply
		FROM pool_states WHERE ledger_id = $1`, ledgerID).Scan(
		&state.LiquidityParameter, &state.TotalLiquidity, &bVector, &outcomeSupply,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PoolState{}, fmt.Errorf("%w: pool state for market %d", domain.ErrNotFound, ledgerID)
	}
	if err != nil {
		return domain.PoolState{}, fmt.Errorf("postgres: get pool state: %w", err)
	}

	state.BVector, err = decodeVector(bVector)
	if err != nil {
		return domain.PoolState{}, fmt.Errorf("%w: b_vector for market %d: %v", domain.ErrCorruptState, ledgerID, err)
	}
	state.OutcomeSupply, err = decodeVector(outcomeSupply)
	if err != nil {
		return domain.PoolState{}, fmt.Errorf("%w: outcome_supply for market %d: %v", domain.ErrCorruptState, ledgerID, err)
	}
	return state, nil
}

// Save writes the pool state record, replacing any previous one.
func (s *PoolStateStore) Save(ctx context.Context, marketID string, ledgerID uint64, state domain.PoolState) error {
	bVector, err := encodeVector(state.BVector)
	if err != nil {
		return fmt.Errorf("postgres: encode b_vector: %w", err)
	}
	outcomeSupply, err := encodeVector(state.OutcomeSupply)
	if err != nil {
		return fmt.Errorf("postgres: encode outcome_supply: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pool_states (ledger_id, market_id, liquidity_parameter, total_liquidity, b_vector, outcome_supply, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (ledger_id) DO UPDATE SET
			market_id = EXCLUDED.market_id,
			liquidity_parameter = EXCLUDED.liquidity_parameter,
			total_liquidity = EXCLUDED.total_liquidity,
			b_vector = EXCLUDED.b_vector,
			outcome_supply = EXCLUDED.outcome_supply,
			updated_at = NOW()`,
		ledgerID, marketID, state.LiquidityParameter, state.TotalLiquidity, bVector, outcomeSupply,
	)
	if err != nil {
		return fmt.Errorf("postgres: save pool state: %w", err)
	}
	return nil
}

func encodeVector(values []float64) (string, error) {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("entry %d is not finite", i)
		}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeVector(raw string) ([]float64, error) {
	var entries []any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	out := make([]float64, len(entries))
	for i, e := range entries {
		f, ok := e.(float64)
		if !ok {
			return nil, fmt.Errorf("entry %d is not a number", i)
		}
		out[i] = f
	}
	return out, nil
}
