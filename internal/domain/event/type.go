package event

// Type identifies the type of domain event
type Type string

const (
	TypeWorkflowStarted    Type = "workflow.started"
	TypeStageChanged       Type = "workflow.stage_changed"
	TypeDecisionRecorded   Type = "approval.decided"
	TypeRevisionOpened     Type = "revision.opened"
	TypeRevisionEscalated  Type = "revision.escalated"
	TypeActionDeadLettered Type = "action.dead_lettered"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeWorkflowStarted,
		TypeStageChanged,
		TypeDecisionRecorded,
		TypeRevisionOpened,
		TypeRevisionEscalated,
		TypeActionDeadLettered:
		return true
	default:
		return false
	}
}
