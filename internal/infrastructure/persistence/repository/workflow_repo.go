package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// WorkflowRepository implements port.WorkflowStore on a versioned row per document
type WorkflowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB, logger *zap.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	document_id, current_stage, revision_count, auto_progression,
	metadata, external_ref, version, created_at, updated_at
`

// CreateIfAbsent implements port.WorkflowStore
func (r *WorkflowRepository) CreateIfAbsent(ctx context.Context, record *entity.WorkflowRecord) (bool, error) {
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return false, err
	}

	if record.Version == 0 {
		record.Version = 1
	}
	now := utc(record.CreatedAt)

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT OR IGNORE INTO workflow_records (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.DocumentID,
		record.CurrentStage,
		record.RevisionCount,
		record.AutoProgression,
		metadata,
		nullString(record.ExternalRef),
		record.Version,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create workflow record", zap.Int64("document_id", record.DocumentID), zap.Error(err))
		return false, fmt.Errorf("failed to create workflow record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		record.CreatedAt, record.UpdatedAt = now, now
	}
	return n == 1, nil
}

// Get implements port.WorkflowStore
func (r *WorkflowRepository) Get(ctx context.Context, documentID int64) (*entity.WorkflowRecord, error) {
	row := getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflow_records WHERE document_id = ?`, documentID)
	return r.scan(row, "document_id", documentID)
}

// GetByExternalRef implements port.WorkflowStore
func (r *WorkflowRepository) GetByExternalRef(ctx context.Context, ref string) (*entity.WorkflowRecord, error) {
	if ref == "" {
		return nil, nil
	}
	row := getExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+workflowColumns+` FROM workflow_records WHERE external_ref = ?`, ref)
	return r.scan(row, "external_ref", ref)
}

func (r *WorkflowRepository) scan(row rowScanner, key string, value interface{}) (*entity.WorkflowRecord, error) {
	var record entity.WorkflowRecord
	var metadata, externalRef sql.NullString

	err := row.Scan(
		&record.DocumentID,
		&record.CurrentStage,
		&record.RevisionCount,
		&record.AutoProgression,
		&metadata,
		&externalRef,
		&record.Version,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow record", zap.Any(key, value), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow record: %w", err)
	}

	if record.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	record.ExternalRef = externalRef.String
	return &record, nil
}

// CompareAndSwap implements port.WorkflowStore
func (r *WorkflowRepository) CompareAndSwap(ctx context.Context, record *entity.WorkflowRecord, expectedStage workflow.Stage, expectedVersion int64) (bool, error) {
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return false, err
	}

	now := utc(record.UpdatedAt)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE workflow_records
		SET current_stage = ?, revision_count = ?, auto_progression = ?,
			metadata = ?, version = version + 1, updated_at = ?
		WHERE document_id = ? AND current_stage = ? AND version = ?
	`,
		record.CurrentStage,
		record.RevisionCount,
		record.AutoProgression,
		metadata,
		now,
		record.DocumentID,
		expectedStage,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update workflow record",
			zap.Int64("document_id", record.DocumentID),
			zap.String("expected_stage", expectedStage.String()),
			zap.Error(err))
		return false, fmt.Errorf("failed to update workflow record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	record.Version = expectedVersion + 1
	record.UpdatedAt = now
	return true, nil
}

// SetExternalRef implements port.WorkflowStore
func (r *WorkflowRepository) SetExternalRef(ctx context.Context, documentID int64, ref string) error {
	result, err := getExecutor(ctx, r.db).ExecContext(ctx,
		`UPDATE workflow_records SET external_ref = ?, updated_at = ? WHERE document_id = ?`,
		nullString(ref), time.Now().UTC(), documentID,
	)
	if err != nil {
		r.logger.Error("Failed to set external ref", zap.Int64("document_id", documentID), zap.Error(err))
		return fmt.Errorf("failed to set external ref: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("document %d: %w", documentID, workflow.ErrNotFound)
	}
	return nil
}

var _ port.WorkflowStore = (*WorkflowRepository)(nil)
