package entity

import (
	"time"

	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Quotation is the sales document driven through the workflow
type Quotation struct {
	ID            int64     `json:"id"`
	ClientRef     string    `json:"client_ref"`
	ClientContact string    `json:"client_contact"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	BusinessUnit  string    `json:"business_unit"`
	Owner         string    `json:"owner"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// WorkflowRecord holds the lifecycle position of one quotation.
// Version is the compare-and-swap token; every committed transition increments it.
type WorkflowRecord struct {
	DocumentID      int64                  `json:"document_id"`
	CurrentStage    workflow.Stage         `json:"current_stage"`
	RevisionCount   int                    `json:"revision_count"`
	AutoProgression bool                   `json:"auto_progression"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	ExternalRef     string                 `json:"external_ref,omitempty"`
	Version         int64                  `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Metadata keys the engine itself reads
const (
	MetaOwner        = "owner"
	MetaBusinessUnit = "business_unit"
)

// MetadataString returns a string metadata value or ""
func (r *WorkflowRecord) MetadataString(key string) string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	if v, ok := r.Metadata[key].(string); ok {
		return v
	}
	return ""
}

// HistoryEntry is the audit trail row written with every committed transition
type HistoryEntry struct {
	ID            int64          `json:"id"`
	DocumentID    int64          `json:"document_id"`
	PreviousStage workflow.Stage `json:"previous_stage"`
	NewStage      workflow.Stage `json:"new_stage"`
	Trigger       string         `json:"trigger"`
	Value         string         `json:"value,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	Note          string         `json:"note,omitempty"`
	RevisionCount int            `json:"revision_count"`
	CreatedAt     time.Time      `json:"created_at"`
}
