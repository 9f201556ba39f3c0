package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MixasV/werpool/internal/domain"
)

// TransactionLogStore implements domain.TransactionLogStore using PostgreSQL.
type TransactionLogStore struct {
	pool *pgxpool.Pool
}

var _ domain.TransactionLogStore = (*TransactionLogStore)(nil)

// NewTransactionLogStore creates a new TransactionLogStore backed by the given connection pool.
func NewTransactionLogStore(pool *pgxpool.Pool) *TransactionLogStore {
	return &TransactionLogStore{pool: pool}
}

// Insert appends one ledger transaction record.
func (s *TransactionLogStore) Insert(ctx context.Context, entry domain.TransactionLog) error {
	payload, err := json.Marshal(metadataOrEmpty(entry.Payload))
	if err != nil {
		return fmt.Errorf("postgres: marshal transaction payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transaction_logs (id, market_id, tx_type, status, transaction_id, signer, network, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.MarketID, entry.Type, entry.Status,
		entry.TransactionID, entry.Signer, entry.Network, payload, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert transaction log: %w", err)
	}
	return nil
}

// ListByMarket returns transaction log entries for a market, newest first.
func (s *TransactionLogStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.TransactionLog, error) {
	query := `
		SELECT id, market_id, tx_type, status, transaction_id, signer, network, payload, created_at
		FROM transaction_logs WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transaction logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.TransactionLog
	for rows.Next() {
		var (
			entry   domain.TransactionLog
			payload []byte
		)
		if err := rows.Scan(
			&entry.ID, &entry.MarketID, &entry.Type, &entry.Status,
			&entry.TransactionID, &entry.Signer, &entry.Network, &payload, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan transaction log: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &entry.Payload); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal transaction payload: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list transaction logs: %w", err)
	}
	return entries, nil
}
