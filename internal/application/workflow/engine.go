package workflow

import (
	"context"

	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Orchestrator drives quotations through the lifecycle graph
type Orchestrator interface {
	// StartWorkflow creates the quotation and its record in draft, then emits submit
	StartWorkflow(ctx context.Context, req StartRequest) (*Result, error)

	// Progress applies one signal. Unknown (stage, event) pairs return an unapplied
	// result; a lost compare-and-swap race returns ErrStaleState.
	Progress(ctx context.Context, documentID int64, sig domainwf.Signal, opts ...ProgressOption) (*Result, error)

	// ProgressByExternalRef resolves the document through its external approval reference
	ProgressByExternalRef(ctx context.Context, ref string, sig domainwf.Signal, opts ...ProgressOption) (*Result, error)

	// GetState returns the record with its open tasks, latest decision and history
	GetState(ctx context.Context, documentID int64) (*State, error)
}

// StartRequest carries the quotation fields known when it enters the workflow
type StartRequest struct {
	DocumentID      int64   `json:"document_id"`
	ClientRef       string  `json:"client_ref"`
	ClientContact   string  `json:"client_contact"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	BusinessUnit    string  `json:"business_unit"`
	Owner           string  `json:"owner"`
	ExternalRef     string  `json:"external_ref"`
	AutoProgression *bool   `json:"auto_progression,omitempty"`
}

// Result describes the effect of one Progress call
type Result struct {
	DocumentID    int64             `json:"document_id"`
	PreviousStage domainwf.Stage    `json:"previous_stage"`
	NewStage      domainwf.Stage    `json:"new_stage"`
	Applied       bool              `json:"applied"`
	Actions       []domainwf.Action `json:"actions_triggered"`
	RevisionCount int               `json:"revision_count"`
	Version       int64             `json:"version"`
}

// State is the read model of one document
type State struct {
	Record         *entity.WorkflowRecord   `json:"workflow"`
	Quotation      *entity.Quotation        `json:"quotation,omitempty"`
	Tasks          []*entity.Task           `json:"tasks"`
	LatestDecision *entity.ApprovalDecision `json:"latest_decision,omitempty"`
	History        []*entity.HistoryEntry   `json:"history"`
}

// CommitHook runs inside the transaction that commits a transition
type CommitHook func(ctx context.Context, record *entity.WorkflowRecord) error

// ProgressOption customizes a single Progress call
type ProgressOption func(*progressConfig)

type progressConfig struct {
	hooks         []CommitHook
	correlationID string
}

// OnCommit appends hook to the commit transaction; it only runs when the transition applies
func OnCommit(hook CommitHook) ProgressOption {
	return func(c *progressConfig) {
		c.hooks = append(c.hooks, hook)
	}
}

// WithCorrelationID links emitted events to an upstream event
func WithCorrelationID(id string) ProgressOption {
	return func(c *progressConfig) {
		c.correlationID = id
	}
}

// CommitHooks returns the hooks carried by opts, for Progressor implementations outside this package
func CommitHooks(opts ...ProgressOption) []CommitHook {
	cfg := &progressConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg.hooks
}
