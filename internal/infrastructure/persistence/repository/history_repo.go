package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Create creates a new history record
func (r *HistoryRepository) Create(ctx context.Context, entry *entity.HistoryEntry) error {
	entry.CreatedAt = utc(entry.CreatedAt)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO workflow_history (
			document_id, previous_stage, new_stage, trigger_name, trigger_value,
			actor, note, revision_count, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.DocumentID,
		entry.PreviousStage,
		entry.NewStage,
		entry.Trigger,
		entry.Value,
		entry.Actor,
		entry.Note,
		entry.RevisionCount,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Int64("document_id", entry.DocumentID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetByDocumentID retrieves the transitions of a document oldest first
func (r *HistoryRepository) GetByDocumentID(ctx context.Context, documentID int64) ([]*entity.HistoryEntry, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT id, document_id, previous_stage, new_stage, trigger_name, trigger_value,
			actor, note, revision_count, created_at
		FROM workflow_history
		WHERE document_id = ?
		ORDER BY id ASC
	`, documentID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var entries []*entity.HistoryEntry
	for rows.Next() {
		var e entity.HistoryEntry
		if err := rows.Scan(
			&e.ID,
			&e.DocumentID,
			&e.PreviousStage,
			&e.NewStage,
			&e.Trigger,
			&e.Value,
			&e.Actor,
			&e.Note,
			&e.RevisionCount,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

var _ port.HistoryRepository = (*HistoryRepository)(nil)
