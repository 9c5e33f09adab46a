package config

import (
	"github.com/garyjia/quotation-workflow/internal/container"
	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	byUnit := make(map[string]string, len(c.Approvers.ByUnit))
	for unit, approver := range c.Approvers.ByUnit {
		byUnit[unit] = approver
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Ledger: container.LedgerConfig{
			Backend:       c.Ledger.Backend,
			RedisAddr:     c.Ledger.RedisAddr,
			RedisPassword: c.Ledger.RedisPassword,
			RedisDB:       c.Ledger.RedisDB,
			Prefix:        c.Ledger.Prefix,
			TTL:           c.Ledger.TTL,
		},
		Lark: container.LarkConfig{
			Enabled:      c.Lark.Enabled,
			AppID:        c.Lark.AppID,
			AppSecret:    c.Lark.AppSecret,
			ApprovalCode: c.Lark.ApprovalCode,
			TeamChatID:   c.Lark.TeamChatID,
			RateLimit:    c.Lark.RateLimit,
			RateBurst:    c.Lark.RateBurst,
		},
		Workflow: container.WorkflowConfig{
			AutoProgression:     c.Workflow.AutoProgression,
			AutoDelay:           c.Workflow.AutoDelay,
			ReminderDelay:       c.Workflow.ReminderDelay,
			ApprovalDue:         c.Workflow.ApprovalDue,
			RevisionDue:         c.Workflow.RevisionDue,
			FollowupDue:         c.Workflow.FollowupDue,
			EscalationThreshold: c.Workflow.EscalationThreshold,
			DefaultOwner:        c.Workflow.DefaultOwner,
			DefaultApprover:     c.Approvers.Default,
			ApproversByUnit:     byUnit,
			ApproverCacheTTL:    c.Approvers.CacheTTL,
			Templates: map[string]string{
				domainwf.TemplateClientQuotation:    c.Templates.ClientQuotation,
				domainwf.TemplateFollowupReminder:   c.Templates.FollowupReminder,
				domainwf.TemplateRevisionEscalation: c.Templates.RevisionEscalation,
			},
		},
		Executor: container.ExecutorConfig{
			AttemptTimeout:    c.Executor.Timeout,
			MaxAttempts:       c.Executor.MaxAttempts,
			InitialBackoff:    c.Executor.InitialBackoff,
			BackoffMultiplier: c.Executor.BackoffMultiplier,
			MaxBackoff:        c.Executor.MaxBackoff,
		},
		Scheduler: container.SchedulerConfig{
			PollInterval: c.Scheduler.PollInterval,
			BatchSize:    c.Scheduler.BatchSize,
			MaxAttempts:  c.Scheduler.MaxAttempts,
			RetryBackoff: c.Scheduler.RetryBackoff,
			JobTimeout:   c.Scheduler.JobTimeout,
		},
	}
}
