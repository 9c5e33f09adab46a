package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// RevisionLoop runs the rejection, edit and resubmission cycle
type RevisionLoop interface {
	// OpenRevision opens the revision task inside the rejection's commit
	OpenRevision(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error)

	// CloseRevision completes the revision task inside the edit's commit. An edit
	// with no open revision task fails the commit.
	CloseRevision(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error)

	// HandleEdited returns the document to approval when an open revision task
	// awaits the edit; otherwise it is a no-op. Every edit_signal should enter here.
	HandleEdited(ctx context.Context, documentID int64, editor string, opts ...appwf.ProgressOption) (*appwf.Result, error)
}

type revisionLoopImpl struct {
	progressor Progressor
	store      port.WorkflowStore
	tasks      TaskLedger
	owners     *OwnerResolver
	policy     Policy
	logger     Logger
}

// NewRevisionLoop creates a new RevisionLoop
func NewRevisionLoop(
	progressor Progressor,
	store port.WorkflowStore,
	tasks TaskLedger,
	owners *OwnerResolver,
	policy Policy,
	logger Logger,
) RevisionLoop {
	return &revisionLoopImpl{
		progressor: progressor,
		store:      store,
		tasks:      tasks,
		owners:     owners,
		policy:     policy,
		logger:     logger,
	}
}

// escalated reports whether a revision cycle lies past the threshold. With a
// threshold of 3 the fourth revision is the first escalated one.
func (l *revisionLoopImpl) escalated(revisionCount int) bool {
	return l.policy.EscalationThreshold > 0 && revisionCount > l.policy.EscalationThreshold
}

// OpenRevision opens the revision task for the document's original owner. An
// escalated cycle queues the team message for after the commit.
func (l *revisionLoopImpl) OpenRevision(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error) {
	owner, err := l.owners.ResolveOwner(ctx, record)
	if err != nil {
		return nil, err
	}

	escalated := l.escalated(record.RevisionCount)
	priority := entity.TaskPriorityNormal
	if escalated {
		priority = entity.TaskPriorityHigh
	}

	task, created, err := l.tasks.CreateIfAbsent(ctx, entity.TaskSpec{
		DocumentID: record.DocumentID,
		TaskType:   domainwf.TaskTypeRevision,
		Assignee:   owner,
		Priority:   priority,
		DueDate:    time.Now().Add(l.policy.RevisionDue),
		Metadata: map[string]interface{}{
			entity.MetaAutoCompleteOnEdit: true,
			entity.MetaRevisionCycle:      record.RevisionCount,
			entity.MetaEscalated:          escalated,
		},
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}

	l.logger.Info("Revision requested",
		"document_id", record.DocumentID,
		"owner", owner,
		"revision_count", record.RevisionCount,
	)
	follow := &appwf.FollowUp{
		Events: []*event.Event{event.NewEvent(event.TypeRevisionOpened, record.DocumentID, map[string]interface{}{
			"task_id":        task.ID,
			"owner":          owner,
			"revision_count": record.RevisionCount,
		})},
	}
	if !escalated {
		return follow, nil
	}

	l.logger.Info("Revision escalated",
		"document_id", record.DocumentID,
		"revision_count", record.RevisionCount,
		"threshold", l.policy.EscalationThreshold,
	)
	follow.Events = append(follow.Events, event.NewEvent(event.TypeRevisionEscalated, record.DocumentID, map[string]interface{}{
		"task_id":        task.ID,
		"revision_count": record.RevisionCount,
		"threshold":      l.policy.EscalationThreshold,
	}))
	follow.Actions = append(follow.Actions, domainwf.DispatchMessage(domainwf.ChannelTeam, domainwf.TemplateRevisionEscalation))
	return follow, nil
}

// CloseRevision implements RevisionLoop
func (l *revisionLoopImpl) CloseRevision(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error) {
	open, err := l.tasks.FindOpen(ctx, record.DocumentID, domainwf.TaskTypeRevision)
	if err != nil {
		return nil, fmt.Errorf("failed to find revision task: %w", err)
	}
	if open == nil {
		return nil, fmt.Errorf("document %d has no open revision task: %w", record.DocumentID, domainwf.ErrInvariantViolation)
	}
	return nil, l.tasks.Complete(ctx, record.DocumentID, domainwf.TaskTypeRevision, action.Note)
}

// HandleEdited implements RevisionLoop
func (l *revisionLoopImpl) HandleEdited(ctx context.Context, documentID int64, editor string, opts ...appwf.ProgressOption) (*appwf.Result, error) {
	record, err := l.store.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("document %d: %w", documentID, domainwf.ErrNotFound)
	}

	open, err := l.tasks.FindOpen(ctx, documentID, domainwf.TaskTypeRevision)
	if err != nil {
		return nil, fmt.Errorf("failed to find revision task: %w", err)
	}
	if open == nil || !autoCompletesOnEdit(open) {
		l.logger.Info("Edit ignored, no open revision task", "document_id", documentID, "stage", record.CurrentStage)
		return &appwf.Result{
			DocumentID:    documentID,
			PreviousStage: record.CurrentStage,
			NewStage:      record.CurrentStage,
			RevisionCount: record.RevisionCount,
			Version:       record.Version,
		}, nil
	}

	sig := domainwf.NewSignal(domainwf.TriggerEditSignal, "").
		WithActor(editor).
		WithNote("document edited")
	return l.progressor.Progress(ctx, documentID, sig, opts...)
}

func autoCompletesOnEdit(task *entity.Task) bool {
	v, ok := task.Metadata[entity.MetaAutoCompleteOnEdit].(bool)
	return ok && v
}
