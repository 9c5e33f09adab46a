package lark

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"
)

type stubDecisionHandler struct {
	calls    int
	ref      string
	status   string
	comments string
	decider  string
}

func (s *stubDecisionHandler) RecordExternalDecision(ctx context.Context, externalRef, status, comments, decider string) error {
	s.calls++
	s.ref = externalRef
	s.status = status
	s.comments = comments
	s.decider = decider
	return nil
}

func buildEventPayload(eventType, instanceID, approvalCode string, extra map[string]interface{}) []byte {
	eventData := map[string]interface{}{
		"instance_code": instanceID,
		"approval_code": approvalCode,
	}
	for key, value := range extra {
		eventData[key] = value
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"header": map[string]interface{}{"event_type": eventType},
		"event":  eventData,
	})
	return payload
}

func TestProcessEvent_Approved(t *testing.T) {
	handler := &stubDecisionHandler{}
	processor := NewEventProcessor("QUOTE", handler, zap.NewNop())

	payload := buildEventPayload("approval_instance", "inst-1", "QUOTE", map[string]interface{}{
		"status":  "APPROVED",
		"comment": "ok",
		"user_id": "u-erin",
	})
	if err := processor.ProcessEvent(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if handler.calls != 1 {
		t.Fatalf("expected 1 call, got %d", handler.calls)
	}
	if handler.ref != "inst-1" || handler.status != "approved" || handler.comments != "ok" || handler.decider != "u-erin" {
		t.Errorf("unexpected decision: %+v", handler)
	}
}

func TestProcessEvent_RejectedByEventType(t *testing.T) {
	handler := &stubDecisionHandler{}
	processor := NewEventProcessor("", handler, zap.NewNop())

	payload := buildEventPayload("approval_instance.rejected", "inst-2", "ANY", map[string]interface{}{"open_id": "ou-1"})
	if err := processor.ProcessEvent(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if handler.status != "rejected" {
		t.Errorf("expected rejected, got %q", handler.status)
	}
	if handler.decider != "ou-1" {
		t.Errorf("expected open id fallback, got %q", handler.decider)
	}
}

func TestProcessEvent_Ignored(t *testing.T) {
	cases := map[string][]byte{
		"other approval code": buildEventPayload("approval_instance", "inst-3", "OTHER", map[string]interface{}{"status": "APPROVED"}),
		"missing instance":    buildEventPayload("approval_instance", "", "QUOTE", map[string]interface{}{"status": "APPROVED"}),
		"pending status":      buildEventPayload("approval_instance", "inst-4", "QUOTE", map[string]interface{}{"status": "PENDING"}),
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			handler := &stubDecisionHandler{}
			processor := NewEventProcessor("QUOTE", handler, zap.NewNop())
			if err := processor.ProcessEvent(context.Background(), payload); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if handler.calls != 0 {
				t.Errorf("expected no decision, got %d", handler.calls)
			}
		})
	}
}

func TestProcessEvent_InvalidPayload(t *testing.T) {
	processor := NewEventProcessor("", &stubDecisionHandler{}, zap.NewNop())
	if err := processor.ProcessEvent(context.Background(), []byte("{")); err == nil {
		t.Fatal("expected parse error")
	}
}
