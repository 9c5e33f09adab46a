package port

import (
	"context"
	"time"

	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// TaskService is the outbound task collaborator used by workflow actions
type TaskService interface {
	CreateTask(ctx context.Context, documentID int64, taskType workflow.TaskType, assignee string, dueDate time.Time, metadata map[string]interface{}) (*entity.Task, error)
	CompleteTask(ctx context.Context, documentID int64, taskType workflow.TaskType, notes string) error
}

// Messenger dispatches templated outbound messages
type Messenger interface {
	SendTemplatedMessage(ctx context.Context, documentID int64, channel workflow.Channel, templateID string) error
}

// Scheduler persists a delayed event for a document.
// event is a workflow trigger name or JobKindReminder.
type Scheduler interface {
	ScheduleAt(ctx context.Context, documentID int64, event string, dueTime time.Time, dedupeKey string) error
}

// ApproverDirectory resolves the approver responsible for a business unit
type ApproverDirectory interface {
	ResolveApprover(ctx context.Context, businessUnit string) (string, error)
}
