package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
	"go.uber.org/zap"
)

// TaskRepository implements port.TaskRepository. The partial unique index on open
// tasks makes InsertIfAbsent safe under concurrent callers.
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `
	id, document_id, task_type, assignee, status, priority, due_date,
	completion_notes, metadata, created_at, updated_at, completed_at
`

// InsertIfAbsent implements port.TaskRepository
func (r *TaskRepository) InsertIfAbsent(ctx context.Context, task *entity.Task) (*entity.Task, bool, error) {
	metadata, err := marshalMetadata(task.Metadata)
	if err != nil {
		return nil, false, err
	}

	now := utc(task.CreatedAt)
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT OR IGNORE INTO workflow_tasks (
			document_id, task_type, assignee, status, priority, due_date,
			completion_notes, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.DocumentID,
		task.TaskType,
		task.Assignee,
		task.Status,
		task.Priority,
		nullTime(task.DueDate),
		task.CompletionNotes,
		metadata,
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.Int64("document_id", task.DocumentID),
			zap.String("task_type", string(task.TaskType)),
			zap.Error(err))
		return nil, false, fmt.Errorf("failed to create task: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n == 0 {
		open, err := r.FindOpen(ctx, task.DocumentID, task.TaskType)
		if err != nil {
			return nil, false, err
		}
		if open == nil {
			return nil, false, fmt.Errorf("%w: task insert ignored but no open %s task for document %d",
				workflow.ErrInvariantViolation, task.TaskType, task.DocumentID)
		}
		return open, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt, task.UpdatedAt = now, now
	return task, true, nil
}

// FindOpen implements port.TaskRepository
func (r *TaskRepository) FindOpen(ctx context.Context, documentID int64, taskType workflow.TaskType) (*entity.Task, error) {
	row := getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM workflow_tasks
		WHERE document_id = ? AND task_type = ? AND status IN (?, ?)
	`, documentID, taskType, entity.TaskStatusPending, entity.TaskStatusInProgress)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find open task", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to find open task: %w", err)
	}
	return task, nil
}

// CompleteOpen implements port.TaskRepository
func (r *TaskRepository) CompleteOpen(ctx context.Context, documentID int64, taskType workflow.TaskType, notes string) (int64, error) {
	now := time.Now().UTC()
	result, err := getExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE workflow_tasks
		SET status = ?, completion_notes = ?, completed_at = ?, updated_at = ?
		WHERE document_id = ? AND task_type = ? AND status IN (?, ?)
	`,
		entity.TaskStatusCompleted, notes, now, now,
		documentID, taskType, entity.TaskStatusPending, entity.TaskStatusInProgress,
	)
	if err != nil {
		r.logger.Error("Failed to complete task", zap.Int64("document_id", documentID), zap.Error(err))
		return 0, fmt.Errorf("failed to complete task: %w", err)
	}
	return result.RowsAffected()
}

// LatestAssignee implements port.TaskRepository
func (r *TaskRepository) LatestAssignee(ctx context.Context, documentID int64, types []workflow.TaskType) (string, error) {
	if len(types) == 0 {
		return "", nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(types)), ",")
	args := []interface{}{documentID}
	for _, t := range types {
		args = append(args, t)
	}

	var assignee string
	err := getExecutor(ctx, r.db).QueryRowContext(ctx, `
		SELECT assignee FROM workflow_tasks
		WHERE document_id = ? AND task_type IN (`+placeholders+`) AND assignee != ''
		ORDER BY id DESC LIMIT 1
	`, args...).Scan(&assignee)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get latest assignee: %w", err)
	}
	return assignee, nil
}

// ListByDocument implements port.TaskRepository
func (r *TaskRepository) ListByDocument(ctx context.Context, documentID int64) ([]*entity.Task, error) {
	rows, err := getExecutor(ctx, r.db).QueryContext(ctx,
		`SELECT `+taskColumns+` FROM workflow_tasks WHERE document_id = ? ORDER BY id ASC`, documentID)
	if err != nil {
		r.logger.Error("Failed to list tasks", zap.Int64("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(row rowScanner) (*entity.Task, error) {
	var task entity.Task
	var dueDate, completedAt sql.NullTime
	var metadata sql.NullString

	if err := row.Scan(
		&task.ID,
		&task.DocumentID,
		&task.TaskType,
		&task.Assignee,
		&task.Status,
		&task.Priority,
		&dueDate,
		&task.CompletionNotes,
		&metadata,
		&task.CreatedAt,
		&task.UpdatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if task.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}
	task.DueDate = timePtr(dueDate)
	task.CompletedAt = timePtr(completedAt)
	return &task, nil
}

var _ port.TaskRepository = (*TaskRepository)(nil)
