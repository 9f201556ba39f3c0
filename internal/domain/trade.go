package domain

import "time"

// TradeRequest describes one quote or trade attempt. It is ephemeral and
// never persisted as-is.
type TradeRequest struct {
	OutcomeIndex int
	Shares       float64
	IsBuy        bool
}

// TradeQuote is the pricing engine's answer for a TradeRequest against a
// specific PoolState. The same quote value that is submitted to the ledger
// must be the one applied to the pool afterwards.
type TradeQuote struct {
	FlowAmount        float64   `json:"flow_amount"`
	OutcomeAmount     float64   `json:"outcome_amount"`
	NewBVector        []float64 `json:"new_b_vector"`
	NewTotalLiquidity float64   `json:"new_total_liquidity"`
	NewOutcomeSupply  []float64 `json:"new_outcome_supply"`
	Probabilities     []float64 `json:"probabilities"`
}

// Trade is the persisted, append-only record of one executed trade.
type Trade struct {
	ID            string    `json:"id"`
	MarketID      string    `json:"market_id"`
	MarketSlug    string    `json:"market_slug"`
	OutcomeID     string    `json:"outcome_id"`
	OutcomeLabel  string    `json:"outcome_label"`
	OutcomeIndex  int       `json:"outcome_index"`
	Shares        float64   `json:"shares"`
	FlowAmount    float64   `json:"flow_amount"`
	IsBuy         bool      `json:"is_buy"`
	Probabilities []float64 `json:"probabilities"`
	MaxFlowAmount *float64  `json:"max_flow_amount,omitempty"`
	TransactionID string    `json:"transaction_id"`
	Signer        string    `json:"signer"`
	Network       string    `json:"network"`
	CreatedAt     time.Time `json:"created_at"`
}

// PositionInfo is an advisory on the caller's net buy-minus-sell exposure in
// a market relative to the per-market cap.
type PositionInfo struct {
	CurrentPosition   float64 `json:"current_position"`
	MaxPosition       float64 `json:"max_position"`
	RemainingCapacity float64 `json:"remaining_capacity"`
	WouldExceedLimit  bool    `json:"would_exceed_limit"`
}

// QuoteResult is a quote plus the optional position advisory.
type QuoteResult struct {
	Quote    TradeQuote    `json:"quote"`
	Position *PositionInfo `json:"position,omitempty"`
}

// TradeReceipt is returned after a successful trade execution.
type TradeReceipt struct {
	Trade         Trade      `json:"trade"`
	Quote         TradeQuote `json:"quote"`
	PoolState     PoolState  `json:"pool_state"`
	TransactionID string     `json:"transaction_id"`
	Signer        string     `json:"signer"`
	Network       string     `json:"network"`
}
