package entity

import (
	"time"

	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// LedgerEntry records an executed action under its idempotency key
type LedgerEntry struct {
	Key        string    `json:"key"`
	DocumentID int64     `json:"document_id"`
	ActionName string    `json:"action_name"`
	ExecutedAt time.Time `json:"executed_at"`
}

// DeadLetter is an action that exhausted its retries
type DeadLetter struct {
	ID             int64           `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	DocumentID     int64           `json:"document_id"`
	Stage          workflow.Stage  `json:"stage"`
	RevisionCycle  int             `json:"revision_cycle"`
	Action         workflow.Action `json:"action"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}

// Dead letter status constants
const (
	DeadLetterStatusFailed   = "failed"
	DeadLetterStatusResolved = "resolved"
)

// ScheduledJob is a persisted due-time entry polled by the scheduler worker
type ScheduledJob struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Kind       string    `json:"kind"`
	Trigger    string    `json:"trigger,omitempty"`
	DedupeKey  string    `json:"dedupe_key"`
	DueAt      time.Time `json:"due_at"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Scheduled job kinds
const (
	JobKindProgress = "progress"
	JobKindReminder = "reminder"
)

// Scheduled job status constants
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)
