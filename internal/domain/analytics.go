package domain

import (
	"context"
	"time"
)

// AnalyticsInterval selects the bucket width for analytics snapshots.
type AnalyticsInterval string

const (
	IntervalHour AnalyticsInterval = "hour"
	IntervalDay  AnalyticsInterval = "day"
)

// Truncate returns the start of the bucket containing t for the interval.
func (i AnalyticsInterval) Truncate(t time.Time) time.Time {
	switch i {
	case IntervalDay:
		return t.UTC().Truncate(24 * time.Hour)
	default:
		return t.UTC().Truncate(time.Hour)
	}
}

// Width returns the bucket duration for the interval.
func (i AnalyticsInterval) Width() time.Duration {
	if i == IntervalDay {
		return 24 * time.Hour
	}
	return time.Hour
}

// TradeSample is the fire-and-forget analytics payload emitted per trade.
type TradeSample struct {
	TradeID      string
	MarketID     string
	MarketSlug   string
	OutcomeID    string
	OutcomeIndex int
	OutcomeLabel string
	Probability  float64
	Shares       float64
	FlowAmount   float64
	IsBuy        bool
	OccurredAt   time.Time
}

// AnalyticsSnapshot is an OHLC-style aggregate of outcome probability and
// traded volume within one time bucket.
type AnalyticsSnapshot struct {
	ID           string            `json:"id"`
	MarketID     string            `json:"market_id"`
	OutcomeID    string            `json:"outcome_id"`
	OutcomeIndex int               `json:"outcome_index"`
	OutcomeLabel string            `json:"outcome_label"`
	Interval     AnalyticsInterval `json:"interval"`
	BucketStart  time.Time         `json:"bucket_start"`
	BucketEnd    time.Time         `json:"bucket_end"`
	OpenPrice    float64           `json:"open_price"`
	ClosePrice   float64           `json:"close_price"`
	HighPrice    float64           `json:"high_price"`
	LowPrice     float64           `json:"low_price"`
	AveragePrice float64           `json:"average_price"`
	VolumeShares float64           `json:"volume_shares"`
	VolumeFlow   float64           `json:"volume_flow"`
	NetFlow      float64           `json:"net_flow"`
	TradeCount   int               `json:"trade_count"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// AnalyticsStore persists bucketed trade aggregates.
type AnalyticsStore interface {
	UpsertTrade(ctx context.Context, interval AnalyticsInterval, sample TradeSample) (AnalyticsSnapshot, error)
	ListSnapshots(ctx context.Context, marketID string, interval AnalyticsInterval, outcomeIndex *int, opts ListOpts) ([]AnalyticsSnapshot, error)
}

// Analytics is the downstream analytics collaborator. Failures here are
// logged by callers and never fail a trade.
type Analytics interface {
	RecordTrade(ctx context.Context, sample TradeSample) error
}
