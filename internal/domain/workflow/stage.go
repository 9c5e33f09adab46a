package workflow

// Stage represents a named position in a quotation's lifecycle
type Stage string

const (
	StageDraft           Stage = "draft"
	StagePendingApproval Stage = "pending_approval"
	StageApproved        Stage = "approved"
	StageRejected        Stage = "rejected"
	StageClientSent      Stage = "client_sent"
	StageClientReviewing Stage = "client_reviewing"
	StageNegotiation     Stage = "negotiation"
	StageAccepted        Stage = "accepted"
	StageDeclined        Stage = "declined"
)

// allStages is ordered along the happy path, terminal stages last
var allStages = []Stage{
	StageDraft,
	StagePendingApproval,
	StageApproved,
	StageRejected,
	StageClientSent,
	StageClientReviewing,
	StageNegotiation,
	StageAccepted,
	StageDeclined,
}

var validStages = func() map[Stage]bool {
	m := make(map[Stage]bool, len(allStages))
	for _, s := range allStages {
		m[s] = true
	}
	return m
}()

var terminalStages = map[Stage]bool{
	StageAccepted: true,
	StageDeclined: true,
}

// Stages returns every defined stage
func Stages() []Stage {
	return append([]Stage(nil), allStages...)
}

// IsTerminal returns true if no further transitions leave the stage
func (s Stage) IsTerminal() bool {
	return terminalStages[s]
}

// String returns the string representation of the stage
func (s Stage) String() string {
	return string(s)
}

// IsValid returns true if the stage is a member of the defined stage set
func (s Stage) IsValid() bool {
	return validStages[s]
}

// ParseStage converts a stored value into a Stage
func ParseStage(v string) (Stage, error) {
	s := Stage(v)
	if !s.IsValid() {
		return "", ErrInvalidStage
	}
	return s, nil
}
