package workflow

// ActionKind identifies the side effect a transition requests
type ActionKind string

const (
	ActionCreateTask       ActionKind = "create_task"
	ActionCompleteTask     ActionKind = "complete_task"
	ActionDispatchMessage  ActionKind = "dispatch_message"
	ActionScheduleReminder ActionKind = "schedule_reminder"
	ActionScheduleEvent    ActionKind = "schedule_event"
)

// TaskType tags workflow work items
type TaskType string

const (
	TaskTypeApproval   TaskType = "approval"
	TaskTypeRevision   TaskType = "revision"
	TaskTypeFollowup   TaskType = "followup"
	TaskTypeGeneration TaskType = "quotation_generation"
)

// Channel addresses an outbound message
type Channel string

const (
	ChannelClient Channel = "client"
	ChannelTeam   Channel = "team"
)

// Message template keys, resolved to concrete template ids by configuration
const (
	TemplateClientQuotation    = "client_quotation"
	TemplateFollowupReminder   = "followup_reminder"
	TemplateRevisionEscalation = "revision_escalation"
)

// Action is a side effect requested by a committed transition
type Action struct {
	Kind     ActionKind `json:"kind"`
	TaskType TaskType   `json:"task_type,omitempty"`
	Channel  Channel    `json:"channel,omitempty"`
	Template string     `json:"template,omitempty"`
	Trigger  Trigger    `json:"trigger,omitempty"`
	Note     string     `json:"note,omitempty"`
}

// Name identifies the action within a stage for idempotency purposes.
// The note is excluded so a replay with a different comment is still a duplicate.
func (a Action) Name() string {
	switch a.Kind {
	case ActionCreateTask, ActionCompleteTask:
		return string(a.Kind) + ":" + string(a.TaskType)
	case ActionDispatchMessage:
		return string(a.Kind) + ":" + string(a.Channel) + ":" + a.Template
	case ActionScheduleEvent:
		return string(a.Kind) + ":" + string(a.Trigger)
	default:
		return string(a.Kind)
	}
}

// CreateTask requests a new open task of the given type
func CreateTask(taskType TaskType) Action {
	return Action{Kind: ActionCreateTask, TaskType: taskType}
}

// CompleteTask requests completion of the open task of the given type
func CompleteTask(taskType TaskType) Action {
	return Action{Kind: ActionCompleteTask, TaskType: taskType}
}

// DispatchMessage requests a templated outbound message
func DispatchMessage(channel Channel, template string) Action {
	return Action{Kind: ActionDispatchMessage, Channel: channel, Template: template}
}

// ScheduleReminder requests a durable followup reminder
func ScheduleReminder() Action {
	return Action{Kind: ActionScheduleReminder}
}

// ScheduleEvent requests a durable delayed signal
func ScheduleEvent(trigger Trigger) Action {
	return Action{Kind: ActionScheduleEvent, Trigger: trigger}
}
