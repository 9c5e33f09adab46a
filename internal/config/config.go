package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Approvers ApproversConfig `mapstructure:"approvers"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Lark      LarkConfig      `mapstructure:"lark"`
	Templates TemplatesConfig `mapstructure:"templates"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig holds lifecycle timing and routing policy
type WorkflowConfig struct {
	AutoProgression     bool          `mapstructure:"auto_progression"`
	AutoDelay           time.Duration `mapstructure:"auto_delay"`
	ReminderDelay       time.Duration `mapstructure:"reminder_delay"`
	ApprovalDue         time.Duration `mapstructure:"approval_due"`
	RevisionDue         time.Duration `mapstructure:"revision_due"`
	FollowupDue         time.Duration `mapstructure:"followup_due"`
	EscalationThreshold int           `mapstructure:"escalation_threshold"`
	DefaultOwner        string        `mapstructure:"default_owner"`
}

// ApproversConfig maps business units to approvers
type ApproversConfig struct {
	Default  string            `mapstructure:"default"`
	ByUnit   map[string]string `mapstructure:"by_unit"`
	CacheTTL time.Duration     `mapstructure:"cache_ttl"`
}

// ExecutorConfig holds the action retry policy
type ExecutorConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
}

// SchedulerConfig holds the scheduled job poller settings
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
}

// LedgerConfig selects the idempotency ledger backend
type LedgerConfig struct {
	Backend       string        `mapstructure:"backend"` // sqlite or redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	AppID        string  `mapstructure:"app_id"`
	AppSecret    string  `mapstructure:"app_secret"`
	ApprovalCode string  `mapstructure:"approval_code"`
	TeamChatID   string  `mapstructure:"team_chat_id"`
	RateLimit    float64 `mapstructure:"rate_limit"`
	RateBurst    int     `mapstructure:"rate_burst"`
	EventMode    string  `mapstructure:"event_mode"` // websocket or webhook
	VerifyToken  string  `mapstructure:"verify_token"`
	EncryptKey   string  `mapstructure:"encrypt_key"`
}

// TemplatesConfig maps message kinds to messaging template ids
type TemplatesConfig struct {
	ClientQuotation    string `mapstructure:"client_quotation"`
	FollowupReminder   string `mapstructure:"followup_reminder"`
	RevisionEscalation string `mapstructure:"revision_escalation"`
}

// Load loads configuration from an optional YAML file and environment variables.
// Environment keys use the WF_ prefix, e.g. WF_SERVER_PORT.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/quotations.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("workflow.auto_progression", true)
	v.SetDefault("workflow.auto_delay", 5*time.Second)
	v.SetDefault("workflow.reminder_delay", 24*time.Hour)
	v.SetDefault("workflow.approval_due", 24*time.Hour)
	v.SetDefault("workflow.revision_due", 48*time.Hour)
	v.SetDefault("workflow.followup_due", 24*time.Hour)
	v.SetDefault("workflow.escalation_threshold", 3)
	v.SetDefault("workflow.default_owner", "sales-head")

	v.SetDefault("approvers.default", "sales-manager")
	v.SetDefault("approvers.cache_ttl", 10*time.Minute)

	v.SetDefault("executor.timeout", 10*time.Second)
	v.SetDefault("executor.max_attempts", 5)
	v.SetDefault("executor.initial_backoff", 500*time.Millisecond)
	v.SetDefault("executor.backoff_multiplier", 2.0)
	v.SetDefault("executor.max_backoff", 30*time.Second)

	v.SetDefault("scheduler.poll_interval", time.Second)
	v.SetDefault("scheduler.batch_size", 20)
	v.SetDefault("scheduler.max_attempts", 5)
	v.SetDefault("scheduler.retry_backoff", 10*time.Second)
	v.SetDefault("scheduler.job_timeout", 30*time.Second)

	v.SetDefault("ledger.backend", "sqlite")
	v.SetDefault("ledger.prefix", "quotation:")
	v.SetDefault("ledger.ttl", 0)

	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.rate_limit", 5.0)
	v.SetDefault("lark.rate_burst", 5)
	v.SetDefault("lark.event_mode", "websocket")

	v.SetDefault("templates.client_quotation", "client_quotation")
	v.SetDefault("templates.followup_reminder", "followup_reminder")
	v.SetDefault("templates.revision_escalation", "revision_escalation")
}

// bindEnvVars binds credentials to their conventional environment names
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"lark.app_id":           "LARK_APP_ID",
		"lark.app_secret":       "LARK_APP_SECRET",
		"lark.approval_code":    "LARK_APPROVAL_CODE",
		"lark.team_chat_id":     "LARK_TEAM_CHAT_ID",
		"lark.verify_token":     "LARK_VERIFY_TOKEN",
		"lark.encrypt_key":      "LARK_ENCRYPT_KEY",
		"ledger.redis_addr":     "REDIS_ADDR",
		"ledger.redis_password": "REDIS_PASSWORD",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "WF_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Ledger.Backend {
	case "sqlite":
	case "redis":
		if c.Ledger.RedisAddr == "" {
			return fmt.Errorf("ledger.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("ledger.backend must be sqlite or redis, got %q", c.Ledger.Backend)
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
		if c.Lark.EventMode != "websocket" && c.Lark.EventMode != "webhook" {
			return fmt.Errorf("lark.event_mode must be websocket or webhook, got %q", c.Lark.EventMode)
		}
	}

	if c.Executor.MaxAttempts <= 0 {
		return fmt.Errorf("executor.max_attempts must be positive")
	}
	if c.Executor.BackoffMultiplier < 1 {
		return fmt.Errorf("executor.backoff_multiplier must be at least 1")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive")
	}
	if c.Workflow.EscalationThreshold < 0 {
		return fmt.Errorf("workflow.escalation_threshold must not be negative")
	}

	return nil
}
