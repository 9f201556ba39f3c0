package service

import (
	"context"
	"log/slog"

	"github.com/MixasV/werpool/internal/domain"
)

// AnalyticsService folds executed trades into bucketed OHLC-style snapshots
// and broadcasts the updated buckets. It sits strictly downstream of the
// trade path; nothing here can fail a trade.
type AnalyticsService struct {
	store  domain.AnalyticsStore
	bus    domain.Broadcaster
	logger *slog.Logger
}

var _ domain.Analytics = (*AnalyticsService)(nil)

// NewAnalyticsService creates an AnalyticsService.
func NewAnalyticsService(store domain.AnalyticsStore, bus domain.Broadcaster, logger *slog.Logger) *AnalyticsService {
	return &AnalyticsService{store: store, bus: bus, logger: logger}
}

// RecordTrade upserts the hour and day buckets for the trade's outcome and
// broadcasts each updated snapshot.
func (s *AnalyticsService) RecordTrade(ctx context.Context, sample domain.TradeSample) error {
	for _, interval := range []domain.AnalyticsInterval{domain.IntervalHour, domain.IntervalDay} {
		snap, err := s.store.UpsertTrade(ctx, interval, sample)
		if err != nil {
			return err
		}
		if err := s.bus.PublishAnalytics(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "analytics: snapshot broadcast failed",
				slog.String("market_id", sample.MarketID),
				slog.String("interval", string(interval)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ListSnapshots exposes the stored buckets for API consumers.
func (s *AnalyticsService) ListSnapshots(ctx context.Context, marketID string, interval domain.AnalyticsInterval, outcomeIndex *int, opts domain.ListOpts) ([]domain.AnalyticsSnapshot, error) {
	return s.store.ListSnapshots(ctx, marketID, interval, outcomeIndex, opts)
}
