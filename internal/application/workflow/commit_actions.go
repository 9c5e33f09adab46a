package workflow

import (
	"context"
	"sync"

	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// CommitAction applies an action inside the transaction that commits its
// transition. record is the committed state. An error rolls the transition back.
type CommitAction func(ctx context.Context, record *entity.WorkflowRecord, action domainwf.Action) (*FollowUp, error)

// FollowUp is the work a commit action leaves for after the commit: actions go
// to the executor with the transition's batch, events to the publisher.
type FollowUp struct {
	Actions []domainwf.Action
	Events  []*event.Event
}

type commitRoute struct {
	kind     domainwf.ActionKind
	taskType domainwf.TaskType
}

// CommitActions routes actions to handlers that run in the commit transaction.
// Actions without a route are left to the executor.
type CommitActions struct {
	mu     sync.RWMutex
	routes map[commitRoute]CommitAction
}

// NewCommitActions creates an empty routing table
func NewCommitActions() *CommitActions {
	return &CommitActions{routes: make(map[commitRoute]CommitAction)}
}

// Register routes every action of kind to fn
func (c *CommitActions) Register(kind domainwf.ActionKind, fn CommitAction) {
	c.RegisterTask(kind, "", fn)
}

// RegisterTask routes actions of kind for one task type, taking precedence over Register
func (c *CommitActions) RegisterTask(kind domainwf.ActionKind, taskType domainwf.TaskType, fn CommitAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[commitRoute{kind: kind, taskType: taskType}] = fn
}

func (c *CommitActions) lookup(a domainwf.Action) CommitAction {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if fn, ok := c.routes[commitRoute{kind: a.Kind, taskType: a.TaskType}]; ok {
		return fn
	}
	return c.routes[commitRoute{kind: a.Kind}]
}

// apply runs the routed actions and returns what remains for the executor
func (c *CommitActions) apply(ctx context.Context, record *entity.WorkflowRecord, actions []domainwf.Action) (*FollowUp, error) {
	out := &FollowUp{}
	for _, action := range actions {
		fn := c.lookup(action)
		if fn == nil {
			out.Actions = append(out.Actions, action)
			continue
		}
		follow, err := fn(ctx, record, action)
		if err != nil {
			return nil, err
		}
		if follow != nil {
			out.Actions = append(out.Actions, follow.Actions...)
			out.Events = append(out.Events, follow.Events...)
		}
	}
	return out, nil
}
