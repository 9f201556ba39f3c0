// Package lmsr implements the Logarithmic Market Scoring Rule automated
// market maker as a pure function library. It performs no I/O and holds no
// state: identical inputs always produce identical outputs.
package lmsr

import (
	"fmt"
	"math"

	"github.com/MixasV/werpool/internal/domain"
)

// precision is the fixed output resolution. Every scalar the engine returns
// is rounded half-up at 1e-8, exactly once, on the final values.
const precision = 1e8

// Quote prices a trade request against a pool state. It returns the cost or
// proceeds in ledger currency, the post-trade pool vectors, and the implied
// outcome probabilities after the trade.
//
// The cost function is C(b) = L * logSumExp(b / L) with L the liquidity
// parameter; the flow amount is |C(next) - C(current)|.
func Quote(state domain.PoolState, req domain.TradeRequest) (domain.TradeQuote, error) {
	if err := state.Validate(); err != nil {
		return domain.TradeQuote{}, err
	}
	if err := validateRequest(state, req); err != nil {
		return domain.TradeQuote{}, err
	}

	direction := req.Shares
	if !req.IsBuy {
		direction = -req.Shares
	}

	nextB := append([]float64(nil), state.BVector...)
	nextB[req.OutcomeIndex] += direction

	lseBefore := logSumExp(state.BVector, state.LiquidityParameter)
	lseAfter := logSumExp(nextB, state.LiquidityParameter)
	flowAmount := math.Abs(state.LiquidityParameter * (lseAfter - lseBefore))

	nextTotal := state.TotalLiquidity + flowAmount
	if !req.IsBuy {
		nextTotal = state.TotalLiquidity - flowAmount
	}

	nextSupply := append([]float64(nil), state.OutcomeSupply...)
	nextSupply[req.OutcomeIndex] += direction

	probabilities := softmax(nextB, state.LiquidityParameter)

	return domain.TradeQuote{
		FlowAmount:        Round(flowAmount),
		OutcomeAmount:     Round(req.Shares),
		NewBVector:        roundAll(nextB),
		NewTotalLiquidity: Round(nextTotal),
		NewOutcomeSupply:  roundAll(nextSupply),
		Probabilities:     roundAll(probabilities),
	}, nil
}

func validateRequest(state domain.PoolState, req domain.TradeRequest) error {
	if req.Shares <= 0 || math.IsNaN(req.Shares) || math.IsInf(req.Shares, 0) {
		return fmt.Errorf("%w: shares must be a positive number", domain.ErrInvalidRequest)
	}
	if req.OutcomeIndex < 0 || req.OutcomeIndex >= len(state.BVector) {
		return fmt.Errorf("%w: outcome index %d out of bounds", domain.ErrInvalidRequest, req.OutcomeIndex)
	}
	if !req.IsBuy && state.OutcomeSupply[req.OutcomeIndex] < req.Shares {
		return fmt.Errorf("%w: not enough outcome supply to sell %g shares", domain.ErrInvalidRequest, req.Shares)
	}
	return nil
}

// logSumExp computes log(sum(exp(v_i / L))) with the max subtracted first.
// The max shift is required for numerical stability, not an optimization.
func logSumExp(values []float64, liquidityParameter float64) float64 {
	maxScaled := math.Inf(-1)
	for _, v := range values {
		if s := v / liquidityParameter; s > maxScaled {
			maxScaled = s
		}
	}
	var sum float64
	for _, v := range values {
		sum += math.Exp(v/liquidityParameter - maxScaled)
	}
	return maxScaled + math.Log(sum)
}

func softmax(values []float64, liquidityParameter float64) []float64 {
	maxScaled := math.Inf(-1)
	for _, v := range values {
		if s := v / liquidityParameter; s > maxScaled {
			maxScaled = s
		}
	}
	exps := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		exps[i] = math.Exp(v/liquidityParameter - maxScaled)
		sum += exps[i]
	}
	for i := range exps {
		exps[i] /= sum
	}
	return exps
}

// Round rounds half-up at the engine's 1e-8 resolution.
func Round(v float64) float64 {
	return math.Floor(v*precision+0.5) / precision
}

func roundAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = Round(v)
	}
	return out
}
