package service

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/executor"
	"github.com/garyjia/quotation-workflow/internal/application/port"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// SideEffects handles the actions that need no gate or loop logic
type SideEffects struct {
	tasks     TaskLedger
	owners    *OwnerResolver
	messenger port.Messenger
	scheduler port.Scheduler
	policy    Policy
	logger    Logger
	now       func() time.Time
}

// NewSideEffects creates the generic action handlers
func NewSideEffects(
	tasks TaskLedger,
	owners *OwnerResolver,
	messenger port.Messenger,
	scheduler port.Scheduler,
	policy Policy,
	logger Logger,
) *SideEffects {
	return &SideEffects{
		tasks:     tasks,
		owners:    owners,
		messenger: messenger,
		scheduler: scheduler,
		policy:    policy,
		logger:    logger,
		now:       time.Now,
	}
}

// OpenTask creates a followup (or any other non-gated) task for the document owner
func (s *SideEffects) OpenTask(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error) {
	owner, err := s.owners.ResolveOwner(ctx, record)
	if err != nil {
		return nil, err
	}

	_, _, err = s.tasks.CreateIfAbsent(ctx, entity.TaskSpec{
		DocumentID: record.DocumentID,
		TaskType:   action.TaskType,
		Assignee:   owner,
		DueDate:    s.now().Add(s.policy.dueFor(action.TaskType)),
		Metadata: map[string]interface{}{
			entity.MetaRevisionCycle: record.RevisionCount,
		},
	})
	return nil, err
}

// CompleteTask completes the open task named by the action. Completing a task
// that is not open is a no-op.
func (s *SideEffects) CompleteTask(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*appwf.FollowUp, error) {
	return nil, s.tasks.Complete(ctx, record.DocumentID, action.TaskType, action.Note)
}

// SendMessage dispatches the action's template on its channel
func (s *SideEffects) SendMessage(ctx context.Context, req executor.Request) error {
	templateID := s.policy.TemplateID(req.Action.Template)
	if err := s.messenger.SendTemplatedMessage(ctx, req.DocumentID, req.Action.Channel, templateID); err != nil {
		return fmt.Errorf("%w: %v", domainwf.ErrTransientDispatch, err)
	}
	return nil
}

// ScheduleReminder persists a followup reminder job
func (s *SideEffects) ScheduleReminder(ctx context.Context, req executor.Request) error {
	due := s.now().Add(s.policy.ReminderDelay)
	return s.schedule(ctx, req, entity.JobKindReminder, due)
}

// ScheduleEvent persists a delayed signal for the document
func (s *SideEffects) ScheduleEvent(ctx context.Context, req executor.Request) error {
	due := s.now().Add(s.policy.AutoDelay)
	return s.schedule(ctx, req, req.Action.Trigger.String(), due)
}

func (s *SideEffects) schedule(ctx context.Context, req executor.Request, eventName string, due time.Time) error {
	if err := s.scheduler.ScheduleAt(ctx, req.DocumentID, eventName, due, req.Key); err != nil {
		return fmt.Errorf("%w: schedule %s: %v", domainwf.ErrTransientDispatch, eventName, err)
	}
	s.logger.Info("Job scheduled", "document_id", req.DocumentID, "event", eventName, "due_at", due)
	return nil
}

// RegisterCommitActions routes the task actions into the commit of the
// transition that requests them
func RegisterCommitActions(commit *appwf.CommitActions, gate ApprovalGate, loop RevisionLoop, effects *SideEffects) {
	commit.RegisterTask(domainwf.ActionCreateTask, domainwf.TaskTypeApproval, gate.OpenApproval)
	commit.RegisterTask(domainwf.ActionCreateTask, domainwf.TaskTypeRevision, loop.OpenRevision)
	commit.RegisterTask(domainwf.ActionCompleteTask, domainwf.TaskTypeRevision, loop.CloseRevision)
	commit.Register(domainwf.ActionCreateTask, effects.OpenTask)
	commit.Register(domainwf.ActionCompleteTask, effects.CompleteTask)
}

// RegisterActionHandlers routes the external side effects to the executor
func RegisterActionHandlers(exec executor.ActionExecutor, effects *SideEffects) {
	exec.Register(domainwf.ActionDispatchMessage, effects.SendMessage)
	exec.Register(domainwf.ActionScheduleReminder, effects.ScheduleReminder)
	exec.Register(domainwf.ActionScheduleEvent, effects.ScheduleEvent)
}
