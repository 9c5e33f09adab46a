// Package container provides dependency injection and lifecycle management
// for the quotation workflow service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Ledger selects where executed action keys are recorded
	Ledger LedgerConfig

	// Lark messaging and approval events
	Lark LarkConfig

	// Workflow policy
	Workflow WorkflowConfig

	// Executor retry policy
	Executor ExecutorConfig

	// Scheduler worker settings
	Scheduler SchedulerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the database lock
	BusyTimeout time.Duration
}

// LedgerConfig holds idempotency ledger settings.
type LedgerConfig struct {
	// Backend is "sqlite" or "redis"
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Prefix namespaces redis keys
	Prefix string

	// TTL expires redis entries; zero keeps them forever
	TTL time.Duration
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled switches outbound messages from the log messenger to Lark IM
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// ApprovalCode filters inbound approval events
	ApprovalCode string

	// TeamChatID receives internal team messages
	TeamChatID string

	// RateLimit is outbound messages per second; zero disables limiting
	RateLimit float64
	RateBurst int
}

// WorkflowConfig holds lifecycle policy settings.
type WorkflowConfig struct {
	AutoProgression     bool
	AutoDelay           time.Duration
	ReminderDelay       time.Duration
	ApprovalDue         time.Duration
	RevisionDue         time.Duration
	FollowupDue         time.Duration
	EscalationThreshold int
	DefaultOwner        string

	DefaultApprover  string
	ApproversByUnit  map[string]string
	ApproverCacheTTL time.Duration

	// Templates maps template keys to messaging template ids
	Templates map[string]string
}

// ExecutorConfig holds action retry settings.
type ExecutorConfig struct {
	AttemptTimeout    time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// SchedulerConfig holds scheduled job worker settings.
type SchedulerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	RetryBackoff time.Duration
	JobTimeout   time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/quotations.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Ledger: LedgerConfig{
			Backend: "sqlite",
			Prefix:  "quotation:",
		},
		Lark: LarkConfig{
			RateLimit: 5,
			RateBurst: 5,
		},
		Workflow: WorkflowConfig{
			AutoProgression:     true,
			AutoDelay:           5 * time.Second,
			ReminderDelay:       24 * time.Hour,
			ApprovalDue:         24 * time.Hour,
			RevisionDue:         48 * time.Hour,
			FollowupDue:         24 * time.Hour,
			EscalationThreshold: 3,
			DefaultOwner:        "sales-head",
			DefaultApprover:     "sales-manager",
			ApproverCacheTTL:    10 * time.Minute,
			Templates:           map[string]string{},
		},
		Executor: ExecutorConfig{
			AttemptTimeout:    10 * time.Second,
			MaxAttempts:       5,
			InitialBackoff:    500 * time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Second,
			BatchSize:    20,
			MaxAttempts:  5,
			RetryBackoff: 10 * time.Second,
			JobTimeout:   30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Ledger.Backend {
	case "", "sqlite":
	case "redis":
		if c.Ledger.RedisAddr == "" {
			return fmt.Errorf("ledger.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
	}

	if c.Executor.MaxAttempts <= 0 {
		return fmt.Errorf("executor.max_attempts must be positive")
	}

	return nil
}
