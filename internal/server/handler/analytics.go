package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/MixasV/werpool/internal/domain"
)

// AnalyticsReader lists bucketed trade aggregates.
type AnalyticsReader interface {
	ListSnapshots(ctx context.Context, marketID string, interval domain.AnalyticsInterval, outcomeIndex *int, opts domain.ListOpts) ([]domain.AnalyticsSnapshot, error)
}

// AnalyticsHandler serves the analytics-snapshot endpoints.
type AnalyticsHandler struct {
	analytics AnalyticsReader
	logger    *slog.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(analytics AnalyticsReader, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analytics: analytics,
		logger:    logger,
	}
}

type listSnapshotsResponse struct {
	Snapshots []domain.AnalyticsSnapshot `json:"snapshots"`
	Interval  domain.AnalyticsInterval   `json:"interval"`
	Limit     int                        `json:"limit"`
	Offset    int                        `json:"offset"`
}

// ListSnapshots returns OHLC-style probability buckets for a market.
// GET /api/markets/{id}/analytics?interval=hour&outcome_index=0
func (h *AnalyticsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	interval := domain.IntervalHour
	switch q.Get("interval") {
	case "", string(domain.IntervalHour):
	case string(domain.IntervalDay):
		interval = domain.IntervalDay
	default:
		writeError(w, http.StatusBadRequest, "interval must be hour or day")
		return
	}

	var outcomeIndex *int
	if v := q.Get("outcome_index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "outcome_index must be a non-negative integer")
			return
		}
		outcomeIndex = &n
	}

	opts := parseListOpts(r)
	snapshots, err := h.analytics.ListSnapshots(r.Context(), pathParam(r, "id"), interval, outcomeIndex, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list analytics snapshots failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list analytics snapshots")
		return
	}

	writeJSON(w, http.StatusOK, listSnapshotsResponse{
		Snapshots: snapshots,
		Interval:  interval,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}
