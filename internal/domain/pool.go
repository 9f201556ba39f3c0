package domain

import "fmt"

// PoolState is the per-market LMSR pricing state. All four fields are always
// written together as one unit; a partially updated state must never be
// observable.
type PoolState struct {
	LiquidityParameter float64   `json:"liquidityParameter"`
	BVector            []float64 `json:"bVector"`
	TotalLiquidity     float64   `json:"totalLiquidity"`
	OutcomeSupply      []float64 `json:"outcomeSupply"`
}

// Validate checks the structural invariants of the state. Violations are
// data bugs, not caller errors, and surface as ErrInvalidState.
func (s PoolState) Validate() error {
	if s.LiquidityParameter <= 0 {
		return fmt.Errorf("%w: liquidity parameter must be positive", ErrInvalidState)
	}
	if len(s.BVector) == 0 {
		return fmt.Errorf("%w: b vector must not be empty", ErrInvalidState)
	}
	if len(s.BVector) != len(s.OutcomeSupply) {
		return fmt.Errorf("%w: b vector and outcome supply length mismatch (%d != %d)",
			ErrInvalidState, len(s.BVector), len(s.OutcomeSupply))
	}
	return nil
}

// Clone returns a deep copy so concurrent readers never alias the vectors of
// a cached state.
func (s PoolState) Clone() PoolState {
	out := s
	out.BVector = append([]float64(nil), s.BVector...)
	out.OutcomeSupply = append([]float64(nil), s.OutcomeSupply...)
	return out
}
