package port

import (
	"context"
	"time"

	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// QuotationRepository defines persistence operations for Quotation
type QuotationRepository interface {
	// CreateIfAbsent inserts the quotation unless the id exists; reports whether it inserted
	CreateIfAbsent(ctx context.Context, q *entity.Quotation) (bool, error)
	GetByID(ctx context.Context, id int64) (*entity.Quotation, error)
}

// WorkflowStore persists one WorkflowRecord per document and supports compare-and-swap updates
type WorkflowStore interface {
	// CreateIfAbsent inserts the record in draft unless one exists; reports whether it inserted
	CreateIfAbsent(ctx context.Context, record *entity.WorkflowRecord) (bool, error)

	// Get returns nil, nil when the document has no record
	Get(ctx context.Context, documentID int64) (*entity.WorkflowRecord, error)

	// GetByExternalRef resolves a record through its external approval reference
	GetByExternalRef(ctx context.Context, ref string) (*entity.WorkflowRecord, error)

	// CompareAndSwap writes stage, revision count and metadata from record only if the
	// stored stage and version still equal the expected values. On success record.Version
	// holds the new token.
	CompareAndSwap(ctx context.Context, record *entity.WorkflowRecord, expectedStage workflow.Stage, expectedVersion int64) (bool, error)

	// SetExternalRef links the record to an external approval instance
	SetExternalRef(ctx context.Context, documentID int64, ref string) error
}

// TaskRepository defines persistence operations for workflow tasks
type TaskRepository interface {
	// InsertIfAbsent creates the task unless an open task of the same type exists for
	// the document. It returns the open task and whether it was newly created.
	InsertIfAbsent(ctx context.Context, task *entity.Task) (*entity.Task, bool, error)

	// FindOpen returns the open task of the type or nil
	FindOpen(ctx context.Context, documentID int64, taskType workflow.TaskType) (*entity.Task, error)

	// CompleteOpen completes every open task of the type and returns how many changed
	CompleteOpen(ctx context.Context, documentID int64, taskType workflow.TaskType, notes string) (int64, error)

	// LatestAssignee returns the assignee of the most recent task among types, or ""
	LatestAssignee(ctx context.Context, documentID int64, types []workflow.TaskType) (string, error)

	ListByDocument(ctx context.Context, documentID int64) ([]*entity.Task, error)
}

// DecisionRepository is the append-only approval decision log
type DecisionRepository interface {
	Append(ctx context.Context, decision *entity.ApprovalDecision) error

	// Latest returns the authoritative decision for the document or nil
	Latest(ctx context.Context, documentID int64) (*entity.ApprovalDecision, error)

	ListByDocument(ctx context.Context, documentID int64) ([]*entity.ApprovalDecision, error)
}

// ActionLedger is the persisted set of executed idempotency keys
type ActionLedger interface {
	Exists(ctx context.Context, key string) (bool, error)

	// Record inserts the entry if absent; it reports false when the key was already present
	Record(ctx context.Context, entry *entity.LedgerEntry) (bool, error)
}

// DeadLetterRepository stores actions that exhausted their retries
type DeadLetterRepository interface {
	Create(ctx context.Context, dl *entity.DeadLetter) error
	GetByID(ctx context.Context, id int64) (*entity.DeadLetter, error)
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]*entity.DeadLetter, error)
	MarkResolved(ctx context.Context, id int64) error
}

// JobRepository persists delayed work for the scheduler worker
type JobRepository interface {
	// Schedule inserts the job unless its dedupe key exists; reports whether it inserted
	Schedule(ctx context.Context, job *entity.ScheduledJob) (bool, error)

	// ClaimDue moves up to limit due pending jobs to running and returns them
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*entity.ScheduledJob, error)

	MarkDone(ctx context.Context, id int64) error
	Reschedule(ctx context.Context, id int64, dueAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id int64, lastErr string) error
	ListByDocument(ctx context.Context, documentID int64) ([]*entity.ScheduledJob, error)
}

// HistoryRepository defines persistence operations for the transition audit trail
type HistoryRepository interface {
	Create(ctx context.Context, entry *entity.HistoryEntry) error
	GetByDocumentID(ctx context.Context, documentID int64) ([]*entity.HistoryEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
