package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MixasV/werpool/internal/domain"
)

// archivePageSize bounds each trade-history page read while exporting.
const archivePageSize = 500

// ArchiveService exports the full trade history of a finished market as
// line-delimited JSON to object storage.
type ArchiveService struct {
	markets domain.MarketStore
	trades  domain.TradeStore
	txlogs  domain.TransactionLogStore
	blobs   domain.BlobWriter
	logger  *slog.Logger
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(
	markets domain.MarketStore,
	trades domain.TradeStore,
	txlogs domain.TransactionLogStore,
	blobs domain.BlobWriter,
	logger *slog.Logger,
) *ArchiveService {
	return &ArchiveService{
		markets: markets,
		trades:  trades,
		txlogs:  txlogs,
		blobs:   blobs,
		logger:  logger,
	}
}

// ArchiveMarket writes every trade of a settled or voided market to one JSONL
// object and records an audit transaction-log row. It returns the object key.
func (s *ArchiveService) ArchiveMarket(ctx context.Context, marketID string) (string, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return "", err
	}
	if !market.State.Terminal() {
		return "", fmt.Errorf("%w: only settled or voided markets can be archived, market %s is %s",
			domain.ErrInvalidState, market.ID, market.State)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for offset := 0; ; offset += archivePageSize {
		page, err := s.trades.ListByMarket(ctx, market.ID, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
		})
		if err != nil {
			return "", fmt.Errorf("archive: list trades: %w", err)
		}
		for _, trade := range page {
			if err := enc.Encode(trade); err != nil {
				return "", fmt.Errorf("archive: encode trade %s: %w", trade.ID, err)
			}
			count++
		}
		if len(page) < archivePageSize {
			break
		}
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("archives/%s/%s/trades-%s.jsonl",
		market.Slug, string(market.State), now.Format("20060102T150405Z"))

	if err := s.blobs.Put(ctx, key, "application/x-ndjson", buf.Bytes()); err != nil {
		return "", fmt.Errorf("archive: upload %s: %w", key, err)
	}

	entry := domain.TransactionLog{
		ID:       uuid.NewString(),
		MarketID: market.ID,
		Type:     domain.TxArchiveTrades,
		Status:   "archived",
		Payload: map[string]any{
			"object_key":  key,
			"trade_count": count,
		},
		CreatedAt: now,
	}
	if err := s.txlogs.Insert(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "archive: transaction log insert failed",
			slog.String("market_id", market.ID),
			slog.String("object_key", key),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "archive: market trade history exported",
		slog.String("market_id", market.ID),
		slog.String("object_key", key),
		slog.Int("trade_count", count),
	)
	return key, nil
}
