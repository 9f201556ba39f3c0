package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MixasV/werpool/internal/domain"
)

// WorkflowStore implements domain.WorkflowStore using PostgreSQL.
type WorkflowStore struct {
	pool *pgxpool.Pool
}

var _ domain.WorkflowStore = (*WorkflowStore)(nil)

// NewWorkflowStore creates a new WorkflowStore backed by the given connection pool.
func NewWorkflowStore(pool *pgxpool.Pool) *WorkflowStore {
	return &WorkflowStore{pool: pool}
}

const workflowSelectCols = `id, market_id, action_type, status, description, triggers_at, executed_at, metadata`

func scanWorkflowAction(row pgx.Row) (domain.WorkflowAction, error) {
	var (
		a        domain.WorkflowAction
		metadata []byte
	)
	err := row.Scan(
		&a.ID, &a.MarketID, &a.Type, &a.Status, &a.Description,
		&a.TriggersAt, &a.ExecutedAt, &metadata,
	)
	if err != nil {
		return domain.WorkflowAction{}, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return domain.WorkflowAction{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return a, nil
}

// Add records a workflow action against a market.
func (s *WorkflowStore) Add(ctx context.Context, action domain.WorkflowAction) error {
	metadata, err := json.Marshal(metadataOrEmpty(action.Metadata))
	if err != nil {
		return fmt.Errorf("postgres: marshal workflow metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_actions (id, market_id, action_type, status, description, triggers_at, executed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		action.ID, action.MarketID, action.Type, action.Status,
		action.Description, action.TriggersAt, action.ExecutedAt, metadata,
	)
	if err != nil {
		return fmt.Errorf("postgres: add workflow action: %w", err)
	}
	return nil
}

// ListPending returns the market's not-yet-executed actions of one type.
func (s *WorkflowStore) ListPending(ctx context.Context, marketID string, typ domain.WorkflowActionType) ([]domain.WorkflowAction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+workflowSelectCols+`
		FROM workflow_actions
		WHERE market_id = $1 AND action_type = $2 AND status IN ('pending', 'scheduled')
		ORDER BY triggers_at NULLS LAST`,
		marketID, typ,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending workflow actions: %w", err)
	}
	defer rows.Close()
	return collectWorkflowActions(rows)
}

// ListDue returns actions whose trigger time has passed and that have not run
// yet, oldest first.
func (s *WorkflowStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WorkflowAction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+workflowSelectCols+`
		FROM workflow_actions
		WHERE status IN ('pending', 'scheduled') AND triggers_at IS NOT NULL AND triggers_at <= $1
		ORDER BY triggers_at
		LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due workflow actions: %w", err)
	}
	defer rows.Close()
	return collectWorkflowActions(rows)
}

// MarkExecuted flips a pending or scheduled action to executed. Re-marking an
// already-executed action is a no-op.
func (s *WorkflowStore) MarkExecuted(ctx context.Context, id string, metadata map[string]any) error {
	return s.mark(ctx, id, domain.WorkflowExecuted, metadata)
}

// MarkFailed flips a pending or scheduled action to failed.
func (s *WorkflowStore) MarkFailed(ctx context.Context, id string, metadata map[string]any) error {
	return s.mark(ctx, id, domain.WorkflowFailed, metadata)
}

func (s *WorkflowStore) mark(ctx context.Context, id string, status domain.WorkflowActionStatus, metadata map[string]any) error {
	meta, err := json.Marshal(metadataOrEmpty(metadata))
	if err != nil {
		return fmt.Errorf("postgres: marshal workflow metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE workflow_actions
		SET status = $2, executed_at = NOW(), metadata = metadata || $3
		WHERE id = $1 AND status IN ('pending', 'scheduled')`,
		id, status, meta,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark workflow action %s: %w", status, err)
	}
	return nil
}

func collectWorkflowActions(rows pgx.Rows) ([]domain.WorkflowAction, error) {
	var actions []domain.WorkflowAction
	for rows.Next() {
		a, err := scanWorkflowAction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan workflow action: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: collect workflow actions: %w", err)
	}
	return actions, nil
}
