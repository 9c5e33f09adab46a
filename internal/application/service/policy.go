package service

import (
	"time"

	domainwf "github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Policy holds the timing and routing rules applied by workflow actions
type Policy struct {
	ApprovalDue   time.Duration
	RevisionDue   time.Duration
	FollowupDue   time.Duration
	AutoDelay     time.Duration
	ReminderDelay time.Duration

	// EscalationThreshold flags revision tasks opened once revision_count reaches it; 0 disables
	EscalationThreshold int
	DefaultOwner        string

	// Templates maps template keys to messaging template ids
	Templates map[string]string
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		ApprovalDue:         24 * time.Hour,
		RevisionDue:         48 * time.Hour,
		FollowupDue:         24 * time.Hour,
		AutoDelay:           5 * time.Second,
		ReminderDelay:       24 * time.Hour,
		EscalationThreshold: 3,
		DefaultOwner:        "sales-head",
		Templates:           map[string]string{},
	}
}

// TemplateID resolves a template key, falling back to the key itself
func (p Policy) TemplateID(key string) string {
	if id, ok := p.Templates[key]; ok && id != "" {
		return id
	}
	return key
}

func (p Policy) dueFor(taskType domainwf.TaskType) time.Duration {
	switch taskType {
	case domainwf.TaskTypeApproval:
		return p.ApprovalDue
	case domainwf.TaskTypeRevision:
		return p.RevisionDue
	default:
		return p.FollowupDue
	}
}
