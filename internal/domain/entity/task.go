package entity

import (
	"time"

	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Task is a work item tied to a document and a workflow stage.
// Workflow-tagged tasks are only created through the task ledger.
type Task struct {
	ID              int64                  `json:"id"`
	DocumentID      int64                  `json:"document_id"`
	TaskType        workflow.TaskType      `json:"task_type"`
	Assignee        string                 `json:"assignee"`
	Status          string                 `json:"status"`
	Priority        string                 `json:"priority"`
	DueDate         *time.Time             `json:"due_date,omitempty"`
	CompletionNotes string                 `json:"completion_notes,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
}

// Task status constants
const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// Task priority constants
const (
	TaskPriorityNormal = "normal"
	TaskPriorityHigh   = "high"
)

// Task metadata keys
const (
	MetaAutoCompleteOnEdit = "auto_complete_on_edit"
	MetaEscalated          = "escalated"
	MetaRevisionCycle      = "revision_cycle"
)

// IsOpen returns true while the task still awaits work
func (t *Task) IsOpen() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusInProgress
}

// TaskSpec describes a task to create if no open task of its type exists
type TaskSpec struct {
	DocumentID int64
	TaskType   workflow.TaskType
	Assignee   string
	Priority   string
	DueDate    time.Time
	Metadata   map[string]interface{}
}

// ApprovalDecision is an append-only approval log row; the latest per document wins
type ApprovalDecision struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Status     string    `json:"status"`
	Comments   string    `json:"comments,omitempty"`
	Decider    string    `json:"decider"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Approval decision status constants
const (
	DecisionStatusPending  = "pending"
	DecisionStatusApproved = "approved"
	DecisionStatusRejected = "rejected"
)
