package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/quotation-workflow/internal/application/dispatcher"
	"github.com/garyjia/quotation-workflow/internal/application/executor"
	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// orchestrator is the concrete implementation of Orchestrator
type orchestrator struct {
	store       port.WorkflowStore
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	engine      domainwf.TransitionEngine
	executor    executor.ActionExecutor

	quotations  port.QuotationRepository
	tasks       port.TaskRepository
	decisions   port.DecisionRepository
	publisher   dispatcher.Publisher
	logger      Logger
	defaultAuto bool
	inCommit    *CommitActions
}

// OrchestratorOption configures the orchestrator
type OrchestratorOption func(*orchestrator)

// WithPublisher sets the publisher for post-commit events
func WithPublisher(p dispatcher.Publisher) OrchestratorOption {
	return func(o *orchestrator) {
		o.publisher = p
	}
}

// WithLogger sets a logger
func WithLogger(l Logger) OrchestratorOption {
	return func(o *orchestrator) {
		o.logger = l
	}
}

// WithQuotations enables quotation rows on StartWorkflow and in the read model
func WithQuotations(repo port.QuotationRepository) OrchestratorOption {
	return func(o *orchestrator) {
		o.quotations = repo
	}
}

// WithReadModels enables tasks and decisions in GetState
func WithReadModels(tasks port.TaskRepository, decisions port.DecisionRepository) OrchestratorOption {
	return func(o *orchestrator) {
		o.tasks = tasks
		o.decisions = decisions
	}
}

// WithCommitActions applies the routed actions inside each transition's commit
func WithCommitActions(c *CommitActions) OrchestratorOption {
	return func(o *orchestrator) {
		o.inCommit = c
	}
}

// WithDefaultAutoProgression sets the flag for records started without an explicit choice
func WithDefaultAutoProgression(enabled bool) OrchestratorOption {
	return func(o *orchestrator) {
		o.defaultAuto = enabled
	}
}

// NewOrchestrator creates a new workflow orchestrator
func NewOrchestrator(
	store port.WorkflowStore,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	engine domainwf.TransitionEngine,
	exec executor.ActionExecutor,
	opts ...OrchestratorOption,
) Orchestrator {
	o := &orchestrator{
		store:       store,
		historyRepo: historyRepo,
		txManager:   txManager,
		engine:      engine,
		executor:    exec,
		defaultAuto: true,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// StartWorkflow creates the quotation and record together, then submits
func (o *orchestrator) StartWorkflow(ctx context.Context, req StartRequest) (*Result, error) {
	if req.DocumentID <= 0 {
		return nil, fmt.Errorf("%w: document id must be positive", domainwf.ErrInvalidSignal)
	}

	auto := o.defaultAuto
	if req.AutoProgression != nil {
		auto = *req.AutoProgression
	}

	now := time.Now()
	record := &entity.WorkflowRecord{
		DocumentID:      req.DocumentID,
		CurrentStage:    domainwf.StageDraft,
		AutoProgression: auto,
		Metadata:        map[string]interface{}{},
		ExternalRef:     req.ExternalRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Owner != "" {
		record.Metadata[entity.MetaOwner] = req.Owner
	}
	if req.BusinessUnit != "" {
		record.Metadata[entity.MetaBusinessUnit] = req.BusinessUnit
	}

	var created bool
	err := o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if o.quotations != nil {
			q := &entity.Quotation{
				ID:            req.DocumentID,
				ClientRef:     req.ClientRef,
				ClientContact: req.ClientContact,
				Amount:        req.Amount,
				Currency:      req.Currency,
				BusinessUnit:  req.BusinessUnit,
				Owner:         req.Owner,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if _, err := o.quotations.CreateIfAbsent(txCtx, q); err != nil {
				return fmt.Errorf("create quotation: %w", err)
			}
		}

		var err error
		created, err = o.store.CreateIfAbsent(txCtx, record)
		if err != nil {
			return fmt.Errorf("create workflow record: %w", err)
		}
		return nil
	})
	if err != nil {
		o.logError("Failed to start workflow", "document_id", req.DocumentID, "error", err)
		return nil, err
	}

	if created {
		o.logInfo("Workflow started", "document_id", req.DocumentID, "auto_progression", auto)
		o.publish(ctx, event.NewEvent(event.TypeWorkflowStarted, req.DocumentID, map[string]interface{}{
			"auto_progression": auto,
		}))
	}

	return o.Progress(ctx, req.DocumentID, domainwf.NewSignal(domainwf.TriggerSubmit, ""))
}

// Progress loads, evaluates and commits with compare-and-swap. A lost race is
// retried once when the stage is unchanged; a changed stage means another
// caller already moved the document.
func (o *orchestrator) Progress(ctx context.Context, documentID int64, sig domainwf.Signal, opts ...ProgressOption) (*Result, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	cfg := &progressConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var expected domainwf.Stage
	for attempt := 0; attempt < 2; attempt++ {
		record, err := o.load(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if attempt > 0 && record.CurrentStage != expected {
			o.logInfo("Concurrent transition won the race",
				"document_id", documentID,
				"signal", sig.String(),
				"expected_stage", expected,
				"current_stage", record.CurrentStage,
			)
			return nil, fmt.Errorf("document %d moved from %s to %s: %w",
				documentID, expected, record.CurrentStage, domainwf.ErrStaleState)
		}
		expected = record.CurrentStage

		outcome := o.engine.Next(record.CurrentStage, sig)
		if !outcome.Applied {
			o.logWarn("Transition ignored",
				"document_id", documentID,
				"stage", record.CurrentStage,
				"signal", sig.String(),
				"reason", outcome.Reason,
			)
			return &Result{
				DocumentID:    documentID,
				PreviousStage: record.CurrentStage,
				NewStage:      record.CurrentStage,
				RevisionCount: record.RevisionCount,
				Version:       record.Version,
			}, nil
		}

		next, follow, committed, err := o.commit(ctx, record, outcome, cfg)
		if err != nil {
			o.logError("Failed to commit transition",
				"document_id", documentID,
				"from", outcome.From,
				"to", outcome.To,
				"error", err,
			)
			return nil, err
		}
		if !committed {
			continue
		}

		return o.afterCommit(ctx, next, outcome, follow, cfg), nil
	}

	return nil, fmt.Errorf("document %d: %w", documentID, domainwf.ErrStaleState)
}

func (o *orchestrator) load(ctx context.Context, documentID int64) (*entity.WorkflowRecord, error) {
	record, err := o.store.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("document %d: %w", documentID, domainwf.ErrNotFound)
	}
	return record, nil
}

// commit swaps the record and, in the same transaction, writes history, runs the
// caller's hooks and applies the in-commit actions. Task rows therefore move
// together with the stage that owns them.
func (o *orchestrator) commit(ctx context.Context, record *entity.WorkflowRecord, outcome domainwf.Outcome, cfg *progressConfig) (*entity.WorkflowRecord, *FollowUp, bool, error) {
	next := *record
	next.CurrentStage = outcome.To
	next.UpdatedAt = time.Now()
	if outcome.BumpRevision {
		next.RevisionCount++
	}

	committed := false
	var follow *FollowUp
	err := o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := o.store.CompareAndSwap(txCtx, &next, record.CurrentStage, record.Version)
		if err != nil {
			return fmt.Errorf("compare and swap: %w", err)
		}
		if !ok {
			return nil
		}

		history := &entity.HistoryEntry{
			DocumentID:    record.DocumentID,
			PreviousStage: outcome.From,
			NewStage:      outcome.To,
			Trigger:       outcome.Signal.Trigger.String(),
			Value:         outcome.Signal.Value,
			Actor:         outcome.Signal.Actor,
			Note:          outcome.Signal.Note,
			RevisionCount: next.RevisionCount,
			CreatedAt:     next.UpdatedAt,
		}
		if err := o.historyRepo.Create(txCtx, history); err != nil {
			return fmt.Errorf("create history: %w", err)
		}

		for _, hook := range cfg.hooks {
			if err := hook(txCtx, &next); err != nil {
				return err
			}
		}

		follow, err = o.inCommit.apply(txCtx, &next, outcome.Actions)
		if err != nil {
			return fmt.Errorf("apply %s actions: %w", outcome.To, err)
		}

		committed = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return &next, follow, committed, nil
}

func (o *orchestrator) afterCommit(ctx context.Context, record *entity.WorkflowRecord, outcome domainwf.Outcome, follow *FollowUp, cfg *progressConfig) *Result {
	pending := follow.Actions
	actions := append([]domainwf.Action{}, outcome.Actions...)
	for _, a := range pending {
		if !containsAction(actions, a) {
			actions = append(actions, a)
		}
	}
	if record.AutoProgression && o.engine.CanFire(record.CurrentStage, domainwf.TriggerAuto) {
		auto := domainwf.ScheduleEvent(domainwf.TriggerAuto)
		actions = append(actions, auto)
		pending = append(pending, auto)
	}

	stageEvent := event.NewEventWithCorrelation(event.TypeStageChanged, record.DocumentID, map[string]interface{}{
		"previous_stage": outcome.From.String(),
		"new_stage":      outcome.To.String(),
		"trigger":        outcome.Signal.Trigger.String(),
		"value":          outcome.Signal.Value,
		"revision_count": record.RevisionCount,
	}, cfg.correlationID)

	if len(pending) > 0 {
		o.executor.Submit(ctx, executor.Batch{
			DocumentID:    record.DocumentID,
			Stage:         record.CurrentStage,
			RevisionCycle: record.RevisionCount,
			Version:       record.Version,
			CorrelationID: stageEvent.CorrelationID,
			Actions:       pending,
		})
	}
	o.publish(ctx, stageEvent)
	for _, evt := range follow.Events {
		evt.CorrelationID = stageEvent.CorrelationID
		o.publish(ctx, evt)
	}

	o.logInfo("Stage committed",
		"document_id", record.DocumentID,
		"from", outcome.From,
		"to", outcome.To,
		"revision_count", record.RevisionCount,
		"actions", len(actions),
		"queued", len(pending),
	)

	return &Result{
		DocumentID:    record.DocumentID,
		PreviousStage: outcome.From,
		NewStage:      outcome.To,
		Applied:       true,
		Actions:       actions,
		RevisionCount: record.RevisionCount,
		Version:       record.Version,
	}
}

func containsAction(actions []domainwf.Action, a domainwf.Action) bool {
	for _, existing := range actions {
		if existing.Name() == a.Name() {
			return true
		}
	}
	return false
}

// ProgressByExternalRef resolves the document then progresses it
func (o *orchestrator) ProgressByExternalRef(ctx context.Context, ref string, sig domainwf.Signal, opts ...ProgressOption) (*Result, error) {
	record, err := o.store.GetByExternalRef(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve external ref %s: %w", ref, err)
	}
	if record == nil {
		return nil, fmt.Errorf("external ref %s: %w", ref, domainwf.ErrNotFound)
	}
	return o.Progress(ctx, record.DocumentID, sig, opts...)
}

// GetState assembles the read model for one document
func (o *orchestrator) GetState(ctx context.Context, documentID int64) (*State, error) {
	record, err := o.load(ctx, documentID)
	if err != nil {
		return nil, err
	}

	state := &State{Record: record}

	if o.quotations != nil {
		if state.Quotation, err = o.quotations.GetByID(ctx, documentID); err != nil {
			return nil, fmt.Errorf("failed to load quotation: %w", err)
		}
	}
	if o.tasks != nil {
		if state.Tasks, err = o.tasks.ListByDocument(ctx, documentID); err != nil {
			return nil, fmt.Errorf("failed to load tasks: %w", err)
		}
	}
	if o.decisions != nil {
		if state.LatestDecision, err = o.decisions.Latest(ctx, documentID); err != nil {
			return nil, fmt.Errorf("failed to load decision: %w", err)
		}
	}
	if state.History, err = o.historyRepo.GetByDocumentID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return state, nil
}

func (o *orchestrator) publish(ctx context.Context, evt *event.Event) {
	if o.publisher != nil {
		o.publisher.DispatchAsync(ctx, evt)
	}
}

func (o *orchestrator) logInfo(msg string, kv ...interface{}) {
	if o.logger != nil {
		o.logger.Info(msg, kv...)
	}
}

func (o *orchestrator) logWarn(msg string, kv ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(msg, kv...)
	}
}

func (o *orchestrator) logError(msg string, kv ...interface{}) {
	if o.logger != nil {
		o.logger.Error(msg, kv...)
	}
}
