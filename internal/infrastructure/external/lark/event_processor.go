package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	"go.uber.org/zap"
)

// DecisionHandler receives approval outcomes keyed by the Lark instance code
type DecisionHandler interface {
	RecordExternalDecision(ctx context.Context, externalRef, status, comments, decider string) error
}

// ApprovalEvent represents a Lark approval_instance event payload
type ApprovalEvent struct {
	Header EventHeader `json:"header"`
	Event  struct {
		InstanceCode string `json:"instance_code"`
		ApprovalCode string `json:"approval_code"`
		Status       string `json:"status"`
		Comment      string `json:"comment"`
		UserID       string `json:"user_id"`
		OpenID       string `json:"open_id"`
	} `json:"event"`
}

// EventHeader contains event metadata
type EventHeader struct {
	EventType string `json:"event_type"`
}

// EventProcessor turns Lark approval events into approval decisions
type EventProcessor struct {
	approvalCode string
	handler      DecisionHandler
	logger       *zap.Logger
}

// NewEventProcessor creates a new EventProcessor
func NewEventProcessor(approvalCode string, handler DecisionHandler, logger *zap.Logger) *EventProcessor {
	return &EventProcessor{
		approvalCode: approvalCode,
		handler:      handler,
		logger:       logger,
	}
}

// HandleCustomizedEvent adapts the SDK event payload for processing
func (p *EventProcessor) HandleCustomizedEvent(ctx context.Context, event *larkevent.EventReq) error {
	return p.ProcessEvent(ctx, event.Body)
}

// ProcessEvent parses an approval event and records APPROVED or REJECTED outcomes.
// Other statuses are ignored.
func (p *EventProcessor) ProcessEvent(ctx context.Context, payload []byte) error {
	var evt ApprovalEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("failed to parse approval event payload: %w", err)
	}

	if p.approvalCode != "" && evt.Event.ApprovalCode != "" && evt.Event.ApprovalCode != p.approvalCode {
		p.logger.Debug("Ignoring approval event for different approval code",
			zap.String("approval_code", evt.Event.ApprovalCode))
		return nil
	}

	if evt.Event.InstanceCode == "" {
		p.logger.Warn("Instance code not found in approval event",
			zap.String("event_type", evt.Header.EventType))
		return nil
	}

	status := decisionStatus(evt)
	if status == "" {
		p.logger.Debug("Approval event carries no decision",
			zap.String("event_type", evt.Header.EventType),
			zap.String("status", evt.Event.Status))
		return nil
	}

	decider := evt.Event.UserID
	if decider == "" {
		decider = evt.Event.OpenID
	}

	return p.handler.RecordExternalDecision(ctx, evt.Event.InstanceCode, status, evt.Event.Comment, decider)
}

func decisionStatus(evt ApprovalEvent) string {
	status := strings.ToUpper(evt.Event.Status)
	eventType := strings.ToLower(evt.Header.EventType)
	switch {
	case status == "APPROVED" || strings.Contains(eventType, "approved"):
		return "approved"
	case status == "REJECTED" || strings.Contains(eventType, "rejected"):
		return "rejected"
	default:
		return ""
	}
}
