package container

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/application/dispatcher"
	"github.com/garyjia/quotation-workflow/internal/application/executor"
	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/application/service"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	"github.com/garyjia/quotation-workflow/internal/domain/event"
	infraLark "github.com/garyjia/quotation-workflow/internal/infrastructure/external/lark"
	infraRedis "github.com/garyjia/quotation-workflow/internal/infrastructure/persistence/redis"
	"github.com/garyjia/quotation-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/quotation-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/quotation-workflow/internal/infrastructure/worker"
	"github.com/garyjia/quotation-workflow/pkg/database"
	"github.com/garyjia/quotation-workflow/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// LedgerBundle holds the selected action ledger and its cleanup.
type LedgerBundle struct {
	Ledger port.ActionLedger
	Close  func() error
}

// MessagingBundle holds the outbound messenger and, when enabled, the Lark client behind it.
type MessagingBundle struct {
	Messenger port.Messenger
	Client    *infraLark.SDKClient
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(database.Migrations()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Quotation:  repository.NewQuotationRepository(sqlDB, logger),
		Workflow:   repository.NewWorkflowRepository(sqlDB, logger),
		Task:       repository.NewTaskRepository(sqlDB, logger),
		Decision:   repository.NewDecisionRepository(sqlDB, logger),
		History:    repository.NewHistoryRepository(sqlDB, logger),
		Ledger:     repository.NewLedgerRepository(sqlDB, logger),
		DeadLetter: repository.NewDeadLetterRepository(sqlDB, logger),
		Job:        repository.NewJobRepository(sqlDB, logger),
	}, nil
}

// ProvideLedger returns the sqlite ledger, or a redis ledger when configured.
func ProvideLedger(ctx context.Context, cfg *LedgerConfig, sqliteLedger port.ActionLedger, logger *zap.Logger) (*LedgerBundle, error) {
	if cfg == nil || cfg.Backend == "" || cfg.Backend == "sqlite" {
		return &LedgerBundle{Ledger: sqliteLedger, Close: func() error { return nil }}, nil
	}

	client, err := infraRedis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	logger.Info("Using redis action ledger", zap.String("addr", cfg.RedisAddr))

	return &LedgerBundle{
		Ledger: infraRedis.NewLedger(client, cfg.Prefix, cfg.TTL, logger),
		Close:  client.Close,
	}, nil
}

// ProvideMessaging creates the Lark messenger, or a log-only messenger when Lark is disabled.
func ProvideMessaging(cfg *LarkConfig, quotations port.QuotationRepository, logger *zap.Logger) (*MessagingBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if !cfg.Enabled {
		return &MessagingBundle{Messenger: infraLark.NewLogMessenger(logger)}, nil
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:        cfg.AppID,
		AppSecret:    cfg.AppSecret,
		ApprovalCode: cfg.ApprovalCode,
		TeamChatID:   cfg.TeamChatID,
	}, logger)

	return &MessagingBundle{
		Messenger: infraLark.NewMessenger(client, quotations, cfg.TeamChatID, cfg.RateLimit, cfg.RateBurst, logger),
		Client:    client,
	}, nil
}

// ProvideDispatcher creates the event dispatcher and subscribes the operational log handlers.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	disp := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))

	disp.SubscribeNamed(event.TypeActionDeadLettered, "dead_letter_alert", func(ctx context.Context, evt *event.Event) error {
		logger.Warn("Action dead-lettered",
			zap.Int64("document_id", evt.DocumentID),
			zap.Any("action", evt.Payload["action"]),
			zap.Any("error", evt.Payload["error"]),
			zap.String("correlation_id", evt.CorrelationID))
		return nil
	})
	disp.SubscribeNamed(event.TypeRevisionEscalated, "escalation_alert", func(ctx context.Context, evt *event.Event) error {
		logger.Warn("Revision escalated",
			zap.Int64("document_id", evt.DocumentID),
			zap.Any("revision_count", evt.Payload["revision_count"]))
		return nil
	})

	return disp, nil
}

// ProvideExecutor creates the action executor with the configured retry policy.
func ProvideExecutor(cfg *ExecutorConfig, ledger port.ActionLedger, deadLetters port.DeadLetterRepository, publisher dispatcher.Publisher, logger *zap.Logger) executor.ActionExecutor {
	policy := executor.DefaultRetryPolicy()
	if cfg != nil {
		policy = executor.RetryPolicy{
			MaxAttempts:       cfg.MaxAttempts,
			InitialBackoff:    cfg.InitialBackoff,
			BackoffMultiplier: cfg.BackoffMultiplier,
			MaxBackoff:        cfg.MaxBackoff,
			AttemptTimeout:    cfg.AttemptTimeout,
		}
	}

	return executor.NewExecutor(ledger, deadLetters,
		executor.WithRetryPolicy(policy),
		executor.WithPublisher(publisher),
		executor.WithLogger(utils.NewKVLogger(logger)),
	)
}

// OrchestratorDeps holds dependencies required for creating the orchestrator.
type OrchestratorDeps struct {
	Repos         *RepositoryBundle
	TxManager     port.TransactionManager
	Executor      executor.ActionExecutor
	CommitActions *appwf.CommitActions
	Dispatcher    dispatcher.Dispatcher
	Workflow      *WorkflowConfig
	Logger        *zap.Logger
}

// ProvideOrchestrator creates the workflow orchestrator over the quotation transition table.
func ProvideOrchestrator(deps *OrchestratorDeps) (appwf.Orchestrator, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil || deps.Executor == nil || deps.CommitActions == nil || deps.Workflow == nil {
		return nil, fmt.Errorf("orchestrator dependencies are incomplete")
	}

	return appwf.NewOrchestrator(
		deps.Repos.Workflow,
		deps.Repos.History,
		deps.TxManager,
		appwf.BuildQuotationTable(),
		deps.Executor,
		appwf.WithPublisher(deps.Dispatcher),
		appwf.WithLogger(utils.NewKVLogger(deps.Logger)),
		appwf.WithQuotations(deps.Repos.Quotation),
		appwf.WithReadModels(deps.Repos.Task, deps.Repos.Decision),
		appwf.WithCommitActions(deps.CommitActions),
		appwf.WithDefaultAutoProgression(deps.Workflow.AutoProgression),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos         *RepositoryBundle
	Orchestrator  appwf.Orchestrator
	Executor      executor.ActionExecutor
	CommitActions *appwf.CommitActions
	Publisher     dispatcher.Publisher
	Messenger     port.Messenger
	Scheduler     port.Scheduler
	Workflow      *WorkflowConfig
	Logger        *zap.Logger
}

// ProvideServices creates the application services and routes every workflow action to them.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Orchestrator == nil || deps.Executor == nil || deps.CommitActions == nil {
		return nil, fmt.Errorf("orchestrator, executor and commit actions are required")
	}
	if deps.Workflow == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger)
	policy := ProvidePolicy(deps.Workflow)

	var approvers port.ApproverDirectory = service.NewStaticApproverDirectory(deps.Workflow.DefaultApprover, deps.Workflow.ApproversByUnit)
	if deps.Workflow.ApproverCacheTTL > 0 {
		approvers = service.NewCachedApproverDirectory(approvers, deps.Workflow.ApproverCacheTTL)
	}

	tasks := service.NewTaskLedger(deps.Repos.Task, serviceLogger)
	owners := service.NewOwnerResolver(deps.Repos.Task, policy.DefaultOwner)

	gate := service.NewApprovalGate(deps.Orchestrator, deps.Repos.Workflow, tasks, approvers, deps.Repos.Decision, deps.Publisher, policy, serviceLogger)
	loop := service.NewRevisionLoop(deps.Orchestrator, deps.Repos.Workflow, tasks, owners, policy, serviceLogger)
	effects := service.NewSideEffects(tasks, owners, deps.Messenger, deps.Scheduler, policy, serviceLogger)

	service.RegisterCommitActions(deps.CommitActions, gate, loop, effects)
	service.RegisterActionHandlers(deps.Executor, effects)

	return &ServiceBundle{
		Tasks:       tasks,
		Approvals:   gate,
		Revisions:   loop,
		DeadLetters: service.NewDeadLetterAdmin(deps.Repos.DeadLetter, deps.Executor, serviceLogger),
	}, nil
}

// ProvidePolicy converts workflow settings into the service policy, keeping defaults for unset values.
func ProvidePolicy(cfg *WorkflowConfig) service.Policy {
	policy := service.DefaultPolicy()
	if cfg == nil {
		return policy
	}
	if cfg.ApprovalDue > 0 {
		policy.ApprovalDue = cfg.ApprovalDue
	}
	if cfg.RevisionDue > 0 {
		policy.RevisionDue = cfg.RevisionDue
	}
	if cfg.FollowupDue > 0 {
		policy.FollowupDue = cfg.FollowupDue
	}
	if cfg.AutoDelay > 0 {
		policy.AutoDelay = cfg.AutoDelay
	}
	if cfg.ReminderDelay > 0 {
		policy.ReminderDelay = cfg.ReminderDelay
	}
	if cfg.DefaultOwner != "" {
		policy.DefaultOwner = cfg.DefaultOwner
	}
	policy.EscalationThreshold = cfg.EscalationThreshold
	for key, id := range cfg.Templates {
		if id != "" {
			policy.Templates[key] = id
		}
	}
	return policy
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos        *RepositoryBundle
	Orchestrator appwf.Orchestrator
	Messenger    port.Messenger
	SchedulerCfg *SchedulerConfig
	Templates    map[string]string
	Logger       *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.Manager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil || deps.Orchestrator == nil {
		return nil, fmt.Errorf("repositories and orchestrator are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewManager(deps.Logger)

	cfg := worker.DefaultSchedulerConfig()
	if deps.SchedulerCfg != nil {
		if deps.SchedulerCfg.PollInterval > 0 {
			cfg.PollInterval = deps.SchedulerCfg.PollInterval
		}
		if deps.SchedulerCfg.BatchSize > 0 {
			cfg.BatchSize = deps.SchedulerCfg.BatchSize
		}
		if deps.SchedulerCfg.MaxAttempts > 0 {
			cfg.MaxAttempts = deps.SchedulerCfg.MaxAttempts
		}
		if deps.SchedulerCfg.RetryBackoff > 0 {
			cfg.RetryBackoff = deps.SchedulerCfg.RetryBackoff
		}
		if deps.SchedulerCfg.JobTimeout > 0 {
			cfg.JobTimeout = deps.SchedulerCfg.JobTimeout
		}
	}
	if id := deps.Templates[cfg.ReminderTemplate]; id != "" {
		cfg.ReminderTemplate = id
	}

	manager.Register(worker.NewSchedulerWorker(
		cfg,
		deps.Repos.Job,
		deps.Repos.Workflow,
		deps.Orchestrator,
		deps.Messenger,
		deps.Logger,
	))

	return manager, nil
}
