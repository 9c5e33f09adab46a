package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// DeadLetterRepository implements port.DeadLetterRepository
type DeadLetterRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeadLetterRepository creates a new dead letter repository
func NewDeadLetterRepository(db *sql.DB, logger *zap.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{db: db, logger: logger}
}

const deadLetterColumns = `
	id, idempotency_key, document_id, stage, revision_cycle, action,
	attempts, last_error, status, created_at, resolved_at
`

// Create implements port.DeadLetterRepository
func (r *DeadLetterRepository) Create(ctx context.Context, dl *entity.DeadLetter) error {
	action, err := json.Marshal(dl.Action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	if dl.Status == "" {
		dl.Status = entity.DeadLetterStatusFailed
	}
	dl.CreatedAt = utc(dl.CreatedAt)

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO dead_letters (
			idempotency_key, document_id, stage, revision_cycle, action,
			attempts, last_error, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		dl.IdempotencyKey,
		dl.DocumentID,
		dl.Stage,
		dl.RevisionCycle,
		string(action),
		dl.Attempts,
		dl.LastError,
		dl.Status,
		dl.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create dead letter", zap.Int64("document_id", dl.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create dead letter: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	dl.ID = id
	return nil
}

// GetByID returns nil, nil when the dead letter does not exist
func (r *DeadLetterRepository) GetByID(ctx context.Context, id int64) (*entity.DeadLetter, error) {
	row := getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = ?`, id)

	dl, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return dl, nil
}

// List implements port.DeadLetterRepository, newest first
func (r *DeadLetterRepository) List(ctx context.Context, unresolvedOnly bool, limit int) ([]*entity.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters`
	args := []interface{}{}
	if unresolvedOnly {
		query += ` WHERE status = ?`
		args = append(args, entity.DeadLetterStatusFailed)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*entity.DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		out = append(out, dl)
	}
	return out, rows.Err()
}

// MarkResolved implements port.DeadLetterRepository
func (r *DeadLetterRepository) MarkResolved(ctx context.Context, id int64) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE dead_letters SET status = ?, resolved_at = ? WHERE id = ?`,
		entity.DeadLetterStatusResolved, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("dead letter %d: %w", id, workflow.ErrNotFound)
	}
	return nil
}

func scanDeadLetter(row rowScanner) (*entity.DeadLetter, error) {
	var dl entity.DeadLetter
	var action string
	var resolvedAt sql.NullTime

	if err := row.Scan(
		&dl.ID,
		&dl.IdempotencyKey,
		&dl.DocumentID,
		&dl.Stage,
		&dl.RevisionCycle,
		&action,
		&dl.Attempts,
		&dl.LastError,
		&dl.Status,
		&dl.CreatedAt,
		&resolvedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(action), &dl.Action); err != nil {
		return nil, fmt.Errorf("failed to unmarshal action: %w", err)
	}
	dl.ResolvedAt = timePtr(resolvedAt)
	return &dl, nil
}

var _ port.DeadLetterRepository = (*DeadLetterRepository)(nil)
