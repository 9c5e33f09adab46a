package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"go.uber.org/zap"
)

// DecisionRepository implements port.DecisionRepository as an append-only log
type DecisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *sql.DB, logger *zap.Logger) *DecisionRepository {
	return &DecisionRepository{db: db, logger: logger}
}

// Append implements port.DecisionRepository
func (r *DecisionRepository) Append(ctx context.Context, d *entity.ApprovalDecision) error {
	d.DecidedAt = utc(d.DecidedAt)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_decisions (document_id, status, comments, decider, decided_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.DocumentID, d.Status, d.Comments, d.Decider, d.DecidedAt)
	if err != nil {
		r.logger.Error("Failed to append decision", zap.Int64("document_id", d.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to append decision: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// Latest implements port.DecisionRepository
func (r *DecisionRepository) Latest(ctx context.Context, documentID int64) (*entity.ApprovalDecision, error) {
	row := getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT id, document_id, status, comments, decider, decided_at
		FROM approval_decisions
		WHERE document_id = ?
		ORDER BY id DESC LIMIT 1
	`, documentID)

	var d entity.ApprovalDecision
	err := row.Scan(&d.ID, &d.DocumentID, &d.Status, &d.Comments, &d.Decider, &d.DecidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest decision: %w", err)
	}
	return &d, nil
}

// ListByDocument implements port.DecisionRepository
func (r *DecisionRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.ApprovalDecision, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, document_id, status, comments, decider, decided_at
		FROM approval_decisions
		WHERE document_id = ?
		ORDER BY id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*entity.ApprovalDecision
	for rows.Next() {
		var d entity.ApprovalDecision
		if err := rows.Scan(&d.ID, &d.DocumentID, &d.Status, &d.Comments, &d.Decider, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

var _ port.DecisionRepository = (*DecisionRepository)(nil)
