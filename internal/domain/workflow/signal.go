package workflow

import "fmt"

// Trigger represents the kind of event that can move a document between stages
type Trigger string

const (
	TriggerSubmit         Trigger = "submit"
	TriggerDecision       Trigger = "decision"
	TriggerAuto           Trigger = "auto"
	TriggerClientResponse Trigger = "client_response"
	TriggerFinalOutcome   Trigger = "final_outcome"
	TriggerEditSignal     Trigger = "edit_signal"
)

// Signal values carried by valued triggers
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"

	ResponsePositive = "positive"
	ResponseNegative = "negative"

	OutcomeAccept  = "accept"
	OutcomeDecline = "decline"
)

// PayloadAccepted marks a positive client response that closes the deal outright
const PayloadAccepted = "accepted"

// allowedValues lists the values a trigger accepts; nil means the trigger carries no value
var allowedValues = map[Trigger][]string{
	TriggerSubmit:         nil,
	TriggerDecision:       {DecisionApproved, DecisionRejected},
	TriggerAuto:           nil,
	TriggerClientResponse: {ResponsePositive, ResponseNegative},
	TriggerFinalOutcome:   {OutcomeAccept, OutcomeDecline},
	TriggerEditSignal:     nil,
}

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}

// IsValid returns true if the trigger is known
func (t Trigger) IsValid() bool {
	_, ok := allowedValues[t]
	return ok
}

// Signal is an external event addressed to one document
type Signal struct {
	Trigger Trigger                `json:"event"`
	Value   string                 `json:"value,omitempty"`
	Note    string                 `json:"note,omitempty"`
	Actor   string                 `json:"actor,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// NewSignal creates a signal for the trigger with an optional value
func NewSignal(trigger Trigger, value string) Signal {
	return Signal{Trigger: trigger, Value: value}
}

// WithNote returns a copy of the signal carrying a note
func (s Signal) WithNote(note string) Signal {
	s.Note = note
	return s
}

// WithActor returns a copy of the signal attributed to actor
func (s Signal) WithActor(actor string) Signal {
	s.Actor = actor
	return s
}

// WithPayload returns a copy of the signal with key set in its payload
func (s Signal) WithPayload(key string, value interface{}) Signal {
	payload := make(map[string]interface{}, len(s.Payload)+1)
	for k, v := range s.Payload {
		payload[k] = v
	}
	payload[key] = value
	s.Payload = payload
	return s
}

// PayloadBool reads a boolean payload entry, accepting "true" strings from form input
func (s Signal) PayloadBool(key string) bool {
	switch v := s.Payload[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// Validate checks the trigger is known and its value belongs to the trigger
func (s Signal) Validate() error {
	allowed, ok := allowedValues[s.Trigger]
	if !ok {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidSignal, s.Trigger)
	}
	if allowed == nil {
		if s.Value != "" {
			return fmt.Errorf("%w: event %s takes no value", ErrInvalidSignal, s.Trigger)
		}
		return nil
	}
	for _, v := range allowed {
		if v == s.Value {
			return nil
		}
	}
	return fmt.Errorf("%w: value %q not allowed for event %s", ErrInvalidSignal, s.Value, s.Trigger)
}

// String renders the signal as trigger or trigger=value
func (s Signal) String() string {
	if s.Value == "" {
		return string(s.Trigger)
	}
	return string(s.Trigger) + "=" + s.Value
}
