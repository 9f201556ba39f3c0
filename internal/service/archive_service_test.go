package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/MixasV/werpool/internal/domain"
	"github.com/MixasV/werpool/internal/service"
)

func TestArchiveService_ArchiveMarket(t *testing.T) {
	market := marketInState(domain.MarketStateSettled)
	markets := newFakeMarketStore(market)
	trades := &fakeTradeStore{}
	for i := 0; i < 3; i++ {
		trades.trades = append(trades.trades, domain.Trade{
			ID: string(rune('a' + i)), MarketID: "mkt-1", Signer: "market-svc",
			IsBuy: true, Shares: 5, FlowAmount: 2.5,
		})
	}
	txlogs := &fakeTxLogStore{}
	blobs := newFakeBlobWriter()

	svc := service.NewArchiveService(markets, trades, txlogs, blobs, testLogger())

	key, err := svc.ArchiveMarket(context.Background(), "mkt-1")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(key, "archives/btc-above-100k/settled/") || !strings.HasSuffix(key, ".jsonl") {
		t.Errorf("object key = %q", key)
	}

	data, ok := blobs.objects[key]
	if !ok {
		t.Fatal("object not written")
	}
	if blobs.types[key] != "application/x-ndjson" {
		t.Errorf("content type = %q", blobs.types[key])
	}

	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 3 {
		t.Fatalf("jsonl lines = %d, want 3", len(lines))
	}
	var first domain.Trade
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("line 0 not valid json: %v", err)
	}
	if first.MarketID != "mkt-1" {
		t.Errorf("line 0 = %+v", first)
	}

	if got := len(txlogs.byType(domain.TxArchiveTrades)); got != 1 {
		t.Errorf("archive_trades log rows = %d, want 1", got)
	}
}

func TestArchiveService_RejectsActiveMarket(t *testing.T) {
	markets := newFakeMarketStore(marketInState(domain.MarketStateLive))
	svc := service.NewArchiveService(markets, &fakeTradeStore{}, &fakeTxLogStore{}, newFakeBlobWriter(), testLogger())

	_, err := svc.ArchiveMarket(context.Background(), "mkt-1")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}
