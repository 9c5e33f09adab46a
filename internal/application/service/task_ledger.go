package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// TaskLedger is the only path through which workflow-tagged tasks are created.
// At most one open task per (document, task type) exists at any time.
type TaskLedger interface {
	port.TaskService

	// CreateIfAbsent returns the existing open task instead of creating a duplicate
	CreateIfAbsent(ctx context.Context, spec entity.TaskSpec) (*entity.Task, bool, error)

	// Complete completes the open task of the type; completing nothing is a no-op
	Complete(ctx context.Context, documentID int64, taskType domainwf.TaskType, notes string) error

	FindOpen(ctx context.Context, documentID int64, taskType domainwf.TaskType) (*entity.Task, error)
	ListTasks(ctx context.Context, documentID int64) ([]*entity.Task, error)
}

type taskLedgerImpl struct {
	taskRepo port.TaskRepository
	logger   Logger
}

// NewTaskLedger creates a new TaskLedger
func NewTaskLedger(taskRepo port.TaskRepository, logger Logger) TaskLedger {
	return &taskLedgerImpl{
		taskRepo: taskRepo,
		logger:   logger,
	}
}

// CreateIfAbsent implements TaskLedger
func (l *taskLedgerImpl) CreateIfAbsent(ctx context.Context, spec entity.TaskSpec) (*entity.Task, bool, error) {
	if spec.DocumentID <= 0 || spec.TaskType == "" {
		return nil, false, fmt.Errorf("%w: task needs a document and a type", domainwf.ErrInvariantViolation)
	}

	priority := spec.Priority
	if priority == "" {
		priority = entity.TaskPriorityNormal
	}

	now := time.Now()
	task := &entity.Task{
		DocumentID: spec.DocumentID,
		TaskType:   spec.TaskType,
		Assignee:   spec.Assignee,
		Status:     entity.TaskStatusPending,
		Priority:   priority,
		Metadata:   spec.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if !spec.DueDate.IsZero() {
		due := spec.DueDate
		task.DueDate = &due
	}

	open, created, err := l.taskRepo.InsertIfAbsent(ctx, task)
	if err != nil {
		l.logger.Error("Failed to create task", "error", err, "document_id", spec.DocumentID, "task_type", spec.TaskType)
		return nil, false, fmt.Errorf("create task: %w", err)
	}

	if !created {
		l.logger.Info("Open task already exists",
			"document_id", spec.DocumentID,
			"task_type", spec.TaskType,
			"task_id", open.ID,
		)
		return open, false, nil
	}

	l.logger.Info("Task created",
		"document_id", spec.DocumentID,
		"task_type", spec.TaskType,
		"task_id", open.ID,
		"assignee", open.Assignee,
	)
	return open, true, nil
}

// Complete implements TaskLedger
func (l *taskLedgerImpl) Complete(ctx context.Context, documentID int64, taskType domainwf.TaskType, notes string) error {
	n, err := l.taskRepo.CompleteOpen(ctx, documentID, taskType, notes)
	if err != nil {
		l.logger.Error("Failed to complete task", "error", err, "document_id", documentID, "task_type", taskType)
		return fmt.Errorf("complete task: %w", err)
	}

	if n == 0 {
		l.logger.Info("No open task to complete", "document_id", documentID, "task_type", taskType)
		return nil
	}

	l.logger.Info("Task completed", "document_id", documentID, "task_type", taskType)
	return nil
}

// CreateTask implements port.TaskService
func (l *taskLedgerImpl) CreateTask(ctx context.Context, documentID int64, taskType domainwf.TaskType, assignee string, dueDate time.Time, metadata map[string]interface{}) (*entity.Task, error) {
	task, _, err := l.CreateIfAbsent(ctx, entity.TaskSpec{
		DocumentID: documentID,
		TaskType:   taskType,
		Assignee:   assignee,
		DueDate:    dueDate,
		Metadata:   metadata,
	})
	return task, err
}

// CompleteTask implements port.TaskService
func (l *taskLedgerImpl) CompleteTask(ctx context.Context, documentID int64, taskType domainwf.TaskType, notes string) error {
	return l.Complete(ctx, documentID, taskType, notes)
}

// FindOpen implements TaskLedger
func (l *taskLedgerImpl) FindOpen(ctx context.Context, documentID int64, taskType domainwf.TaskType) (*entity.Task, error) {
	return l.taskRepo.FindOpen(ctx, documentID, taskType)
}

// ListTasks implements TaskLedger
func (l *taskLedgerImpl) ListTasks(ctx context.Context, documentID int64) ([]*entity.Task, error) {
	return l.taskRepo.ListByDocument(ctx, documentID)
}
