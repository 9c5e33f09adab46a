package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/application/dispatcher"
	"github.com/garyjia/quotation-workflow/internal/application/executor"
	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/application/service"
	appwf "github.com/garyjia/quotation-workflow/internal/application/workflow"
	infraLark "github.com/garyjia/quotation-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/quotation-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/quotation-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/quotation-workflow/internal/infrastructure/worker"
	"github.com/garyjia/quotation-workflow/pkg/database"
	"github.com/garyjia/quotation-workflow/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle
	ledger       *LedgerBundle

	// Infrastructure - External
	messaging *MessagingBundle

	// Application
	dispatcher   dispatcher.Dispatcher
	executor     executor.ActionExecutor
	inCommit     *appwf.CommitActions
	orchestrator appwf.Orchestrator
	services     *ServiceBundle

	// Workers
	runWorkers bool
	workers    *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Quotation  *repository.QuotationRepository
	Workflow   *repository.WorkflowRepository
	Task       *repository.TaskRepository
	Decision   *repository.DecisionRepository
	History    *repository.HistoryRepository
	Ledger     *repository.LedgerRepository
	DeadLetter *repository.DeadLetterRepository
	Job        *repository.JobRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Tasks       service.TaskLedger
	Approvals   service.ApprovalGate
	Revisions   service.RevisionLoop
	DeadLetters service.DeadLetterAdmin
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures a Container
type Option func(*Container)

// WithoutWorkers skips background workers, for one-shot processes such as the admin CLI.
func WithoutWorkers() Option {
	return func(c *Container) {
		c.runWorkers = false
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config:     cfg,
		logger:     logger,
		runWorkers: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database, repositories and ledger
// 2. Messaging
// 3. Dispatcher, executor and orchestrator
// 4. Application services and action routing
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initMessaging(); err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	c.logger.Info("Messaging initialized", zap.Bool("lark_enabled", c.messaging.Client != nil))

	if err := c.initWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}
	c.logger.Info("Dispatcher, executor and orchestrator initialized")

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if c.runWorkers {
		if err := c.initWorkers(); err != nil {
			return fmt.Errorf("failed to initialize workers: %w", err)
		}
		c.logger.Info("Workers initialized and started")
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// In-flight action batches still need the database
	if c.executor != nil {
		c.executor.Wait()
		c.logger.Info("Action executor drained")
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			c.logger.Error("Failed to close ledger", zap.Error(err))
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.database != nil {
		if err := c.database.Ping(); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	if c.runWorkers {
		if c.workers != nil {
			status.Components["workers"] = ComponentHealth{
				Healthy: c.workers.IsRunning(),
				Message: fmt.Sprintf("worker count: %d", c.workers.WorkerCount()),
			}
			if !c.workers.IsRunning() {
				status.Overall = false
			}
		} else {
			status.Components["workers"] = ComponentHealth{Healthy: false, Message: "not initialized"}
			status.Overall = false
		}
	}

	if c.orchestrator != nil {
		status.Components["orchestrator"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["orchestrator"] = ComponentHealth{Healthy: false, Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// initDatabase opens the database, creates repositories and selects the ledger.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.DB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.database.DB, c.logger)
	if err != nil {
		c.database.Close()
		return err
	}
	c.repositories = repos

	ledger, err := ProvideLedger(c.ctx, &c.config.Ledger, repos.Ledger, c.logger)
	if err != nil {
		c.database.Close()
		return err
	}
	c.ledger = ledger

	return nil
}

// initMessaging creates the outbound messenger.
func (c *Container) initMessaging() error {
	messaging, err := ProvideMessaging(&c.config.Lark, c.repositories.Quotation, c.logger)
	if err != nil {
		return err
	}
	c.messaging = messaging
	return nil
}

// initWorkflow creates the dispatcher, the executor and the orchestrator.
func (c *Container) initWorkflow() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	c.executor = ProvideExecutor(&c.config.Executor, c.ledger.Ledger, c.repositories.DeadLetter, disp, c.logger)
	c.inCommit = appwf.NewCommitActions()

	orch, err := ProvideOrchestrator(&OrchestratorDeps{
		Repos:         c.repositories,
		TxManager:     c.db,
		Executor:      c.executor,
		CommitActions: c.inCommit,
		Dispatcher:    disp,
		Workflow:      &c.config.Workflow,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}
	c.orchestrator = orch

	return nil
}

// initServices creates the services and registers the in-commit and executor action handlers.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:         c.repositories,
		Orchestrator:  c.orchestrator,
		Executor:      c.executor,
		CommitActions: c.inCommit,
		Publisher:     c.dispatcher,
		Messenger:     c.messaging.Messenger,
		Scheduler:     worker.NewJobScheduler(c.repositories.Job, c.logger),
		Workflow:      &c.config.Workflow,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initWorkers initializes and starts all background workers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:        c.repositories,
		Orchestrator: c.orchestrator,
		Messenger:    c.messaging.Messenger,
		SchedulerCfg: &c.config.Scheduler,
		Templates:    c.config.Workflow.Templates,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Ledger returns the action ledger in use.
func (c *Container) Ledger() port.ActionLedger {
	return c.ledger.Ledger
}

// Messenger returns the outbound messenger.
func (c *Container) Messenger() port.Messenger {
	return c.messaging.Messenger
}

// LarkClient returns the Lark SDK client, or nil when Lark is disabled.
func (c *Container) LarkClient() *infraLark.SDKClient {
	return c.messaging.Client
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Executor returns the action executor.
func (c *Container) Executor() executor.ActionExecutor {
	return c.executor
}

// Orchestrator returns the workflow orchestrator.
func (c *Container) Orchestrator() appwf.Orchestrator {
	return c.orchestrator
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// KVLogger returns the container's logger in key/value form.
func (c *Container) KVLogger() *utils.KVLogger {
	return utils.NewKVLogger(c.logger)
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
