package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Progressor applies scheduled signals
type Progressor interface {
	Progress(ctx context.Context, documentID int64, sig domainwf.Signal, opts ...appwf.ProgressOption) (*appwf.Result, error)
}

// SchedulerConfig holds configuration for the scheduler worker
type SchedulerConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxAttempts      int
	RetryBackoff     time.Duration
	JobTimeout       time.Duration
	ReminderTemplate string
}

// DefaultSchedulerConfig returns default configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollInterval:     time.Second,
		BatchSize:        20,
		MaxAttempts:      5,
		RetryBackoff:     10 * time.Second,
		JobTimeout:       30 * time.Second,
		ReminderTemplate: domainwf.TemplateFollowupReminder,
	}
}

// reminderStages are the stages in which a followup reminder is still useful
var reminderStages = map[domainwf.Stage]bool{
	domainwf.StageClientReviewing: true,
	domainwf.StageNegotiation:     true,
}

// SchedulerWorker polls due jobs and turns them into workflow signals or reminders
type SchedulerWorker struct {
	config     SchedulerConfig
	jobs       port.JobRepository
	store      port.WorkflowStore
	progressor Progressor
	messenger  port.Messenger
	logger     *zap.Logger
	now        func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	processed int
	failed    int
}

// NewSchedulerWorker creates a new scheduler worker
func NewSchedulerWorker(
	config SchedulerConfig,
	jobs port.JobRepository,
	store port.WorkflowStore,
	progressor Progressor,
	messenger port.Messenger,
	logger *zap.Logger,
) *SchedulerWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.ReminderTemplate == "" {
		config.ReminderTemplate = domainwf.TemplateFollowupReminder
	}
	return &SchedulerWorker{
		config:     config,
		jobs:       jobs,
		store:      store,
		progressor: progressor,
		messenger:  messenger,
		logger:     logger,
		now:        time.Now,
	}
}

// Name returns the worker name for identification
func (w *SchedulerWorker) Name() string {
	return "SchedulerWorker"
}

// Start begins the polling loop
func (w *SchedulerWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("scheduler worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("SchedulerWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current batch to finish
func (w *SchedulerWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger.Info("SchedulerWorker stopped",
		zap.Int("processed_count", w.processed),
		zap.Int("failed_count", w.failed))
	return nil
}

func (w *SchedulerWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to process due jobs", zap.Error(err))
			}
		}
	}
}

// RunOnce claims and processes one batch of due jobs, returning how many it handled
func (w *SchedulerWorker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.jobs.ClaimDue(ctx, w.now(), w.config.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, job := range jobs {
		w.handle(ctx, job)
	}
	return len(jobs), nil
}

func (w *SchedulerWorker) handle(ctx context.Context, job *entity.ScheduledJob) {
	jobCtx := ctx
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}

	err := w.run(jobCtx, job)
	if err == nil {
		if err := w.jobs.MarkDone(ctx, job.ID); err != nil {
			w.logger.Error("Failed to mark job done", zap.Int64("job_id", job.ID), zap.Error(err))
		}
		w.count(false)
		return
	}

	w.logger.Error("Scheduled job failed",
		zap.Int64("job_id", job.ID),
		zap.Int64("document_id", job.DocumentID),
		zap.String("kind", job.Kind),
		zap.Int("attempt", job.Attempts),
		zap.Error(err))

	if job.Attempts >= w.config.MaxAttempts {
		if err := w.jobs.MarkFailed(ctx, job.ID, err.Error()); err != nil {
			w.logger.Error("Failed to mark job failed", zap.Int64("job_id", job.ID), zap.Error(err))
		}
		w.count(true)
		return
	}

	retryAt := w.now().Add(w.config.RetryBackoff * time.Duration(job.Attempts))
	if err := w.jobs.Reschedule(ctx, job.ID, retryAt, err.Error()); err != nil {
		w.logger.Error("Failed to reschedule job", zap.Int64("job_id", job.ID), zap.Error(err))
	}
}

func (w *SchedulerWorker) count(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if failed {
		w.failed++
	} else {
		w.processed++
	}
}

func (w *SchedulerWorker) run(ctx context.Context, job *entity.ScheduledJob) error {
	switch job.Kind {
	case entity.JobKindProgress:
		return w.progress(ctx, job)
	case entity.JobKindReminder:
		return w.remind(ctx, job)
	default:
		w.logger.Warn("Unknown job kind, dropping", zap.Int64("job_id", job.ID), zap.String("kind", job.Kind))
		return nil
	}
}

// progress emits the scheduled signal. A signal the document no longer accepts,
// or one that lost a race, is complete.
func (w *SchedulerWorker) progress(ctx context.Context, job *entity.ScheduledJob) error {
	sig := domainwf.NewSignal(domainwf.Trigger(job.Trigger), "").WithActor("scheduler")

	result, err := w.progressor.Progress(ctx, job.DocumentID, sig)
	switch {
	case errors.Is(err, domainwf.ErrStaleState), errors.Is(err, domainwf.ErrNotFound), errors.Is(err, domainwf.ErrInvalidSignal):
		w.logger.Info("Scheduled signal dropped",
			zap.Int64("document_id", job.DocumentID),
			zap.String("trigger", job.Trigger),
			zap.Error(err))
		return nil
	case err != nil:
		return err
	}

	if !result.Applied {
		w.logger.Info("Scheduled signal not applicable",
			zap.Int64("document_id", job.DocumentID),
			zap.String("trigger", job.Trigger),
			zap.String("stage", result.NewStage.String()))
		return nil
	}

	w.logger.Info("Scheduled signal applied",
		zap.Int64("document_id", job.DocumentID),
		zap.String("trigger", job.Trigger),
		zap.String("new_stage", result.NewStage.String()))
	return nil
}

func (w *SchedulerWorker) remind(ctx context.Context, job *entity.ScheduledJob) error {
	record, err := w.store.Get(ctx, job.DocumentID)
	if err != nil {
		return err
	}
	if record == nil || !reminderStages[record.CurrentStage] {
		return nil
	}

	return w.messenger.SendTemplatedMessage(ctx, job.DocumentID, domainwf.ChannelTeam, w.config.ReminderTemplate)
}
