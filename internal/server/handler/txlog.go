package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/MixasV/werpool/internal/domain"
)

// TransactionLogReader lists the ledger transaction log of a market.
type TransactionLogReader interface {
	ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.TransactionLog, error)
}

// TransactionLogHandler serves the transaction-log endpoint.
type TransactionLogHandler struct {
	txlogs TransactionLogReader
	logger *slog.Logger
}

// NewTransactionLogHandler creates a TransactionLogHandler.
func NewTransactionLogHandler(txlogs TransactionLogReader, logger *slog.Logger) *TransactionLogHandler {
	return &TransactionLogHandler{
		txlogs: txlogs,
		logger: logger,
	}
}

type listTransactionsResponse struct {
	Transactions []domain.TransactionLog `json:"transactions"`
	Limit        int                     `json:"limit"`
	Offset       int                     `json:"offset"`
}

// ListTransactions returns the ledger transactions recorded for a market.
// GET /api/markets/{id}/transactions
func (h *TransactionLogHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.txlogs.ListByMarket(r.Context(), pathParam(r, "id"), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list transactions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	writeJSON(w, http.StatusOK, listTransactionsResponse{
		Transactions: entries,
		Limit:        opts.Limit,
		Offset:       opts.Offset,
	})
}
