package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/dispatcher"
	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// ErrNoHandler is returned when no handler is registered for an action
var ErrNoHandler = errors.New("no handler registered for action")

// Batch is the action list of one committed transition
type Batch struct {
	DocumentID    int64
	Stage         workflow.Stage
	RevisionCycle int

	// Version is the record version produced by the commit; it orders batches per document
	Version       int64
	CorrelationID string
	Actions       []workflow.Action
}

// Request is what a handler receives for a single action
type Request struct {
	DocumentID    int64
	Stage         workflow.Stage
	RevisionCycle int
	Action        workflow.Action
	Key           string
}

// ActionHandler performs one side effect. Returning an error marked with
// Permanent skips the remaining retries.
type ActionHandler func(ctx context.Context, req Request) error

// Status of a single action execution
type Status string

const (
	StatusExecuted     Status = "executed"
	StatusSkipped      Status = "skipped"
	StatusDeadLettered Status = "dead_lettered"
)

// Result reports what happened to one action
type Result struct {
	Key      string
	Action   workflow.Action
	Status   Status
	Attempts int
	Err      error
}

// ActionExecutor runs transition side effects exactly once per idempotency key
type ActionExecutor interface {
	// Register routes every action of kind to handler
	Register(kind workflow.ActionKind, handler ActionHandler)

	// RegisterTask routes actions of kind for one task type, taking precedence over Register
	RegisterTask(kind workflow.ActionKind, taskType workflow.TaskType, handler ActionHandler)

	// Submit queues the batch and returns immediately. Batches of one document run in version order.
	Submit(ctx context.Context, batch Batch)

	// Execute runs the batch synchronously
	Execute(ctx context.Context, batch Batch) []Result

	// Replay retries a dead-lettered action once more with the full retry policy
	Replay(ctx context.Context, deadLetterID int64) error

	// Wait blocks until every submitted batch has finished
	Wait()
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type routeKey struct {
	kind     workflow.ActionKind
	taskType workflow.TaskType
}

type docQueue struct {
	batches []Batch
}

type actionExecutor struct {
	ledger      port.ActionLedger
	deadLetters port.DeadLetterRepository
	publisher   dispatcher.Publisher
	policy      RetryPolicy
	logger      Logger

	mu       sync.RWMutex
	handlers map[routeKey]ActionHandler

	qmu    sync.Mutex
	queues map[int64]*docQueue
	wg     sync.WaitGroup
}

// Option configures the executor
type Option func(*actionExecutor)

// WithRetryPolicy overrides the default retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *actionExecutor) {
		e.policy = p
	}
}

// WithPublisher publishes dead-letter events
func WithPublisher(p dispatcher.Publisher) Option {
	return func(e *actionExecutor) {
		e.publisher = p
	}
}

// WithLogger sets a logger
func WithLogger(l Logger) Option {
	return func(e *actionExecutor) {
		e.logger = l
	}
}

// NewExecutor creates an action executor backed by the ledger and dead-letter log
func NewExecutor(ledger port.ActionLedger, deadLetters port.DeadLetterRepository, opts ...Option) ActionExecutor {
	e := &actionExecutor{
		ledger:      ledger,
		deadLetters: deadLetters,
		policy:      DefaultRetryPolicy(),
		handlers:    make(map[routeKey]ActionHandler),
		queues:      make(map[int64]*docQueue),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Register implements ActionExecutor
func (e *actionExecutor) Register(kind workflow.ActionKind, handler ActionHandler) {
	e.RegisterTask(kind, "", handler)
}

// RegisterTask implements ActionExecutor
func (e *actionExecutor) RegisterTask(kind workflow.ActionKind, taskType workflow.TaskType, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[routeKey{kind: kind, taskType: taskType}] = handler
}

func (e *actionExecutor) handlerFor(a workflow.Action) ActionHandler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if h, ok := e.handlers[routeKey{kind: a.Kind, taskType: a.TaskType}]; ok {
		return h
	}
	return e.handlers[routeKey{kind: a.Kind}]
}

// Submit implements ActionExecutor
func (e *actionExecutor) Submit(ctx context.Context, batch Batch) {
	if len(batch.Actions) == 0 {
		return
	}

	e.qmu.Lock()
	defer e.qmu.Unlock()

	q, running := e.queues[batch.DocumentID]
	if !running {
		q = &docQueue{}
		e.queues[batch.DocumentID] = q
	}
	q.batches = append(q.batches, batch)
	sort.SliceStable(q.batches, func(i, j int) bool {
		return q.batches[i].Version < q.batches[j].Version
	})

	if !running {
		e.wg.Add(1)
		go e.drain(context.WithoutCancel(ctx), batch.DocumentID)
	}
}

func (e *actionExecutor) drain(ctx context.Context, documentID int64) {
	defer e.wg.Done()
	for {
		e.qmu.Lock()
		q := e.queues[documentID]
		if len(q.batches) == 0 {
			delete(e.queues, documentID)
			e.qmu.Unlock()
			return
		}
		next := q.batches[0]
		q.batches = q.batches[1:]
		e.qmu.Unlock()

		e.Execute(ctx, next)
	}
}

// Wait implements ActionExecutor
func (e *actionExecutor) Wait() {
	e.wg.Wait()
}

// Execute implements ActionExecutor
func (e *actionExecutor) Execute(ctx context.Context, batch Batch) []Result {
	results := make([]Result, 0, len(batch.Actions))
	for _, action := range batch.Actions {
		req := Request{
			DocumentID:    batch.DocumentID,
			Stage:         batch.Stage,
			RevisionCycle: batch.RevisionCycle,
			Action:        action,
			Key:           IdempotencyKey(batch.DocumentID, batch.Stage, action.Name(), batch.RevisionCycle),
		}
		results = append(results, e.executeOne(ctx, req, batch.CorrelationID))
	}
	return results
}

func (e *actionExecutor) executeOne(ctx context.Context, req Request, correlationID string) Result {
	res := Result{Key: req.Key, Action: req.Action}

	done, err := e.ledger.Exists(ctx, req.Key)
	if err != nil {
		e.logError("Ledger lookup failed, executing anyway", req, err)
	}
	if done {
		res.Status = StatusSkipped
		e.logInfo("Action already executed, skipping", req)
		return res
	}

	res.Attempts, res.Err = e.run(ctx, req)
	if res.Err != nil {
		res.Status = StatusDeadLettered
		e.deadLetter(ctx, req, res, correlationID)
		return res
	}

	res.Status = StatusExecuted
	e.record(ctx, req)
	return res
}

func (e *actionExecutor) run(ctx context.Context, req Request) (int, error) {
	handler := e.handlerFor(req.Action)
	if handler == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoHandler, req.Action.Name())
	}

	return e.policy.Do(ctx, func(attemptCtx context.Context) error {
		return safeCall(attemptCtx, handler, req)
	})
}

func (e *actionExecutor) record(ctx context.Context, req Request) {
	_, err := e.ledger.Record(ctx, &entity.LedgerEntry{
		Key:        req.Key,
		DocumentID: req.DocumentID,
		ActionName: req.Action.Name(),
		ExecutedAt: time.Now(),
	})
	if err != nil {
		// The effect happened; a replay will re-run it and rely on the handler's own idempotency.
		e.logError("Failed to record action in ledger", req, err)
		return
	}
	e.logInfo("Action executed", req)
}

func (e *actionExecutor) deadLetter(ctx context.Context, req Request, res Result, correlationID string) {
	dl := &entity.DeadLetter{
		IdempotencyKey: req.Key,
		DocumentID:     req.DocumentID,
		Stage:          req.Stage,
		RevisionCycle:  req.RevisionCycle,
		Action:         req.Action,
		Attempts:       res.Attempts,
		LastError:      res.Err.Error(),
		Status:         entity.DeadLetterStatusFailed,
		CreatedAt:      time.Now(),
	}

	if err := e.deadLetters.Create(ctx, dl); err != nil {
		e.logError("Failed to write dead letter", req, err)
	} else {
		e.logError("Action dead-lettered", req, res.Err)
	}

	if e.publisher != nil {
		e.publisher.DispatchAsync(ctx, event.NewEventWithCorrelation(
			event.TypeActionDeadLettered,
			req.DocumentID,
			map[string]interface{}{
				"dead_letter_id": dl.ID,
				"action":         req.Action.Name(),
				"stage":          req.Stage.String(),
				"attempts":       res.Attempts,
				"error":          res.Err.Error(),
			},
			correlationID,
		))
	}
}

// Replay implements ActionExecutor
func (e *actionExecutor) Replay(ctx context.Context, deadLetterID int64) error {
	dl, err := e.deadLetters.GetByID(ctx, deadLetterID)
	if err != nil {
		return fmt.Errorf("failed to load dead letter: %w", err)
	}
	if dl == nil {
		return fmt.Errorf("dead letter %d: %w", deadLetterID, workflow.ErrNotFound)
	}
	if dl.Status == entity.DeadLetterStatusResolved {
		return nil
	}

	req := Request{
		DocumentID:    dl.DocumentID,
		Stage:         dl.Stage,
		RevisionCycle: dl.RevisionCycle,
		Action:        dl.Action,
		Key:           dl.IdempotencyKey,
	}

	done, err := e.ledger.Exists(ctx, req.Key)
	if err != nil {
		return fmt.Errorf("failed to check ledger: %w", err)
	}
	if !done {
		if _, err := e.run(ctx, req); err != nil {
			e.logError("Replay failed", req, err)
			return fmt.Errorf("%w: %v", workflow.ErrTransientDispatch, err)
		}
		e.record(ctx, req)
	}

	if err := e.deadLetters.MarkResolved(ctx, dl.ID); err != nil {
		return fmt.Errorf("failed to resolve dead letter: %w", err)
	}
	e.logInfo("Dead letter resolved", req)
	return nil
}

func safeCall(ctx context.Context, handler ActionHandler, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("action handler panic: %v", r))
		}
	}()
	return handler(ctx, req)
}

func (e *actionExecutor) logInfo(msg string, req Request) {
	if e.logger != nil {
		e.logger.Info(msg,
			"document_id", req.DocumentID,
			"stage", req.Stage,
			"action", req.Action.Name(),
			"key", req.Key,
		)
	}
}

func (e *actionExecutor) logError(msg string, req Request, err error) {
	if e.logger != nil {
		e.logger.Error(msg,
			"document_id", req.DocumentID,
			"stage", req.Stage,
			"action", req.Action.Name(),
			"key", req.Key,
			"error", err,
		)
	}
}
