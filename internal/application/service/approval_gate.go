package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/dispatcher"
	"github.com/garyjia/quotation-workflow/internal/application/port"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Progressor is the slice of the orchestrator the services feed signals into
type Progressor interface {
	Progress(ctx context.Context, documentID int64, sig domainwf.Signal, opts ...appwf.ProgressOption) (*appwf.Result, error)
}

// ApprovalGate mediates human approve/reject decisions into workflow signals
type ApprovalGate interface {
	// OpenApproval opens the approval task inside the commit that requested it
	OpenApproval(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error)

	// RecordApprovalDecision appends the decision and emits decision=status in one commit
	RecordApprovalDecision(ctx context.Context, documentID int64, status, comments, decider string) (*appwf.Result, error)

	// RecordExternalDecision records a decision made in an external approval system,
	// resolving the document through its external reference. A decision that lost the
	// race to another decider is logged and dropped.
	RecordExternalDecision(ctx context.Context, externalRef, status, comments, decider string) error

	LatestDecision(ctx context.Context, documentID int64) (*entity.ApprovalDecision, error)
}

type approvalGateImpl struct {
	progressor Progressor
	store      port.WorkflowStore
	tasks      TaskLedger
	approvers  port.ApproverDirectory
	decisions  port.DecisionRepository
	publisher  dispatcher.Publisher
	policy     Policy
	logger     Logger
}

// NewApprovalGate creates a new ApprovalGate
func NewApprovalGate(
	progressor Progressor,
	store port.WorkflowStore,
	tasks TaskLedger,
	approvers port.ApproverDirectory,
	decisions port.DecisionRepository,
	publisher dispatcher.Publisher,
	policy Policy,
	logger Logger,
) ApprovalGate {
	return &approvalGateImpl{
		progressor: progressor,
		store:      store,
		tasks:      tasks,
		approvers:  approvers,
		decisions:  decisions,
		publisher:  publisher,
		policy:     policy,
		logger:     logger,
	}
}

// OpenApproval resolves the approver and opens the single pending approval task
func (g *approvalGateImpl) OpenApproval(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error) {
	businessUnit := record.MetadataString(entity.MetaBusinessUnit)
	approver, err := g.approvers.ResolveApprover(ctx, businessUnit)
	if err != nil {
		return nil, fmt.Errorf("resolve approver: %w", err)
	}

	now := time.Now()
	task, created, err := g.tasks.CreateIfAbsent(ctx, entity.TaskSpec{
		DocumentID: record.DocumentID,
		TaskType:   domainwf.TaskTypeApproval,
		Assignee:   approver,
		DueDate:    now.Add(g.policy.ApprovalDue),
		Metadata: map[string]interface{}{
			entity.MetaRevisionCycle: record.RevisionCount,
		},
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}

	if err := g.decisions.Append(ctx, &entity.ApprovalDecision{
		DocumentID: record.DocumentID,
		Status:     entity.DecisionStatusPending,
		Decider:    approver,
		DecidedAt:  now,
	}); err != nil {
		return nil, fmt.Errorf("append pending decision: %w", err)
	}

	g.logger.Info("Approval requested",
		"document_id", record.DocumentID,
		"approver", approver,
		"business_unit", businessUnit,
		"task_id", task.ID,
		"revision_count", record.RevisionCount,
	)
	return nil, nil
}

// RecordApprovalDecision implements ApprovalGate
func (g *approvalGateImpl) RecordApprovalDecision(ctx context.Context, documentID int64, status, comments, decider string) (*appwf.Result, error) {
	if status != entity.DecisionStatusApproved && status != entity.DecisionStatusRejected {
		return nil, fmt.Errorf("%w: decision status must be approved or rejected, got %q", domainwf.ErrInvalidSignal, status)
	}

	decision := &entity.ApprovalDecision{
		DocumentID: documentID,
		Status:     status,
		Comments:   comments,
		Decider:    decider,
	}

	sig := domainwf.NewSignal(domainwf.TriggerDecision, status).
		WithNote(comments).
		WithActor(decider)

	result, err := g.progressor.Progress(ctx, documentID, sig,
		appwf.OnCommit(func(txCtx context.Context, record *entity.WorkflowRecord) error {
			decision.DecidedAt = record.UpdatedAt
			if err := g.decisions.Append(txCtx, decision); err != nil {
				return fmt.Errorf("append decision: %w", err)
			}
			return nil
		}),
	)
	if err != nil {
		g.logger.Error("Failed to record decision", "error", err, "document_id", documentID, "status", status)
		return nil, err
	}

	if !result.Applied {
		if alreadyDecided(result.NewStage) {
			g.logger.Info("Decision rejected, document already decided",
				"document_id", documentID,
				"stage", result.NewStage,
				"status", status,
			)
			return nil, fmt.Errorf("document %d is %s: %w", documentID, result.NewStage, domainwf.ErrStaleState)
		}
		g.logger.Info("Decision ignored, document not awaiting approval",
			"document_id", documentID,
			"stage", result.NewStage,
			"status", status,
		)
		return result, nil
	}

	if g.publisher != nil {
		g.publisher.DispatchAsync(ctx, event.NewEvent(event.TypeDecisionRecorded, documentID, map[string]interface{}{
			"status":   status,
			"decider":  decider,
			"comments": comments,
		}))
	}

	g.logger.Info("Decision recorded", "document_id", documentID, "status", status, "decider", decider)
	return result, nil
}

// RecordExternalDecision implements ApprovalGate
func (g *approvalGateImpl) RecordExternalDecision(ctx context.Context, externalRef, status, comments, decider string) error {
	record, err := g.store.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return fmt.Errorf("resolve external ref: %w", err)
	}
	if record == nil {
		return fmt.Errorf("external ref %q: %w", externalRef, domainwf.ErrNotFound)
	}

	_, err = g.RecordApprovalDecision(ctx, record.DocumentID, status, comments, decider)
	if errors.Is(err, domainwf.ErrStaleState) {
		g.logger.Info("External decision superseded", "document_id", record.DocumentID, "external_ref", externalRef, "status", status)
		return nil
	}
	return err
}

// alreadyDecided reports whether a stage lies past the approval gate, so a late
// decision lost to an earlier one rather than arriving too soon
func alreadyDecided(stage domainwf.Stage) bool {
	return stage != domainwf.StageDraft && stage != domainwf.StagePendingApproval
}

// LatestDecision implements ApprovalGate
func (g *approvalGateImpl) LatestDecision(ctx context.Context, documentID int64) (*entity.ApprovalDecision, error) {
	return g.decisions.Latest(ctx, documentID)
}
