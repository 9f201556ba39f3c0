package ledger

import (
	"context"
	"fmt"

	"github.com/MixasV/werpool/internal/domain"
)

// Script and transaction descriptors understood by the deployed contracts.
const (
	PoolStateScript       = "scripts/getPoolState.cdc"
	AccountBalancesScript = "scripts/getAccountBalances.cdc"

	CreatePoolTx         = "transactions/createMarketPool.cdc"
	ExecuteTradeTx       = "transactions/executeTrade.cdc"
	ActivateMarketTx     = "transactions/activateMarket.cdc"
	SuspendMarketTx      = "transactions/suspendMarket.cdc"
	CloseMarketTx        = "transactions/closeMarket.cdc"
	VoidMarketTx         = "transactions/voidMarket.cdc"
	SettleMarketTx       = "transactions/settleMarket.cdc"
	OverrideSettlementTx = "transactions/overrideSettlement.cdc"
	RecordPatrolTx       = "transactions/recordPatrolSignal.cdc"
	ClearPatrolTx        = "transactions/clearPatrolSignal.cdc"
)

// ScriptExecutor runs read-only scripts against the ledger.
type ScriptExecutor interface {
	ExecuteScript(ctx context.Context, req ScriptRequest) (Value, error)
}

// AccountBalances is a point-in-time balance snapshot for one account within
// one market.
type AccountBalances struct {
	FlowBalance    float64
	OutcomeBalance float64
}

// MarketReader reads market ground truth from the ledger.
type MarketReader struct {
	exec    ScriptExecutor
	network string
}

// NewMarketReader creates a MarketReader using the given executor and
// network.
func NewMarketReader(exec ScriptExecutor, network string) *MarketReader {
	return &MarketReader{exec: exec, network: network}
}

// PoolState fetches the authoritative pricing state of a market pool.
// A missing pool maps to domain.ErrNotFound.
func (r *MarketReader) PoolState(ctx context.Context, ledgerID uint64) (domain.PoolState, error) {
	value, err := r.exec.ExecuteScript(ctx, ScriptRequest{
		Path:      PoolStateScript,
		Arguments: []Value{UInt64(ledgerID)},
		Network:   r.network,
	})
	if err != nil {
		return domain.PoolState{}, err
	}

	dict, ok := value.Unwrap()
	if !ok {
		return domain.PoolState{}, fmt.Errorf("%w: pool state for market %d", domain.ErrNotFound, ledgerID)
	}

	state, err := mapPoolState(dict)
	if err != nil {
		return domain.PoolState{}, fmt.Errorf("ledger: pool state for market %d: %w", ledgerID, err)
	}
	return state, nil
}

// Balances fetches the account's ledger-currency and outcome-token balances
// for one market.
func (r *MarketReader) Balances(ctx context.Context, address string, ledgerID uint64) (AccountBalances, error) {
	value, err := r.exec.ExecuteScript(ctx, ScriptRequest{
		Path:      AccountBalancesScript,
		Arguments: []Value{Address(address), UInt64(ledgerID)},
		Network:   r.network,
	})
	if err != nil {
		return AccountBalances{}, err
	}

	dict, ok := value.Unwrap()
	if !ok {
		return AccountBalances{}, fmt.Errorf("%w: balances for %s in market %d", domain.ErrNotFound, address, ledgerID)
	}

	flow, err := dictFloat(dict, "flowBalance")
	if err != nil {
		return AccountBalances{}, err
	}
	outcome, err := dictFloat(dict, "outcomeBalance")
	if err != nil {
		return AccountBalances{}, err
	}
	return AccountBalances{FlowBalance: flow, OutcomeBalance: outcome}, nil
}

func mapPoolState(dict Value) (domain.PoolState, error) {
	liquidityParameter, err := dictFloat(dict, "liquidityParameter")
	if err != nil {
		return domain.PoolState{}, err
	}
	totalLiquidity, err := dictFloat(dict, "totalLiquidity")
	if err != nil {
		return domain.PoolState{}, err
	}
	bVector, err := dictFloats(dict, "bVector")
	if err != nil {
		return domain.PoolState{}, err
	}
	outcomeSupply, err := dictFloats(dict, "outcomeSupply")
	if err != nil {
		return domain.PoolState{}, err
	}

	state := domain.PoolState{
		LiquidityParameter: liquidityParameter,
		TotalLiquidity:     totalLiquidity,
		BVector:            bVector,
		OutcomeSupply:      outcomeSupply,
	}
	if err := state.Validate(); err != nil {
		return domain.PoolState{}, err
	}
	return state, nil
}

func dictFloat(dict Value, field string) (float64, error) {
	raw, ok := dict.DictField(field)
	if !ok {
		return 0, fmt.Errorf("field %q missing", field)
	}
	inner, ok := raw.Unwrap()
	if !ok {
		return 0, fmt.Errorf("field %q is nil", field)
	}
	return inner.Float()
}

func dictFloats(dict Value, field string) ([]float64, error) {
	raw, ok := dict.DictField(field)
	if !ok {
		return nil, fmt.Errorf("field %q missing", field)
	}
	inner, ok := raw.Unwrap()
	if !ok {
		return nil, fmt.Errorf("field %q is nil", field)
	}
	return inner.FloatSlice()
}
