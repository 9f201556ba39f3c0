package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Archiver exports the trade history of a finished market to object storage.
type Archiver interface {
	ArchiveMarket(ctx context.Context, marketID string) (string, error)
}

// ArchiveHandler serves the trade-archive endpoint.
type ArchiveHandler struct {
	archiver Archiver
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archiver Archiver, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver: archiver,
		logger:   logger,
	}
}

// ArchiveMarket exports every trade of a settled or voided market to object
// storage and returns the object key.
// POST /api/markets/{id}/archive
func (h *ArchiveHandler) ArchiveMarket(w http.ResponseWriter, r *http.Request) {
	marketID := pathParam(r, "id")

	key, err := h.archiver.ArchiveMarket(r.Context(), marketID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive market failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"object_key": key})
}
