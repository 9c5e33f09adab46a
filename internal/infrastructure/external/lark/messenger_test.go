package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/quotation-workflow/internal/domain/entity"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

type sentMessage struct {
	receiveIDType string
	receiveID     string
	msgType       string
	content       string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_1", nil
}

type fakeQuotations struct {
	quotations map[int64]*entity.Quotation
}

func (f *fakeQuotations) CreateIfAbsent(ctx context.Context, q *entity.Quotation) (bool, error) {
	return false, nil
}

func (f *fakeQuotations) GetByID(ctx context.Context, id int64) (*entity.Quotation, error) {
	return f.quotations[id], nil
}

func newTestMessenger(sender *fakeSender) *Messenger {
	quotations := &fakeQuotations{quotations: map[int64]*entity.Quotation{
		1: {ID: 1, ClientRef: "ACME", ClientContact: "buyer@acme.test", Amount: 990, Currency: "USD"},
		2: {ID: 2, ClientRef: "NoContact"},
	}}
	return NewMessenger(sender, quotations, "oc_team", 0, 1, zap.NewNop())
}

func TestMessenger_ClientChannelUsesContactEmail(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMessenger(sender)

	require.NoError(t, m.SendTemplatedMessage(context.Background(), 1, workflow.ChannelClient, "client_quotation"))
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, "email", msg.receiveIDType)
	assert.Equal(t, "buyer@acme.test", msg.receiveID)
	assert.Equal(t, "interactive", msg.msgType)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msg.content), &body))
	assert.Contains(t, msg.content, "client_quotation")
	assert.Contains(t, msg.content, "ACME")
	assert.Contains(t, msg.content, "990.00 USD")
}

func TestMessenger_TeamChannelUsesChat(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMessenger(sender)

	require.NoError(t, m.SendTemplatedMessage(context.Background(), 2, workflow.ChannelTeam, "revision_escalation"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "chat_id", sender.sent[0].receiveIDType)
	assert.Equal(t, "oc_team", sender.sent[0].receiveID)
}

func TestMessenger_Errors(t *testing.T) {
	sender := &fakeSender{}
	m := newTestMessenger(sender)
	ctx := context.Background()

	assert.Error(t, m.SendTemplatedMessage(ctx, 2, workflow.ChannelClient, "client_quotation"))
	assert.Error(t, m.SendTemplatedMessage(ctx, 404, workflow.ChannelClient, "client_quotation"))
	assert.Error(t, m.SendTemplatedMessage(ctx, 1, workflow.Channel("fax"), "client_quotation"))

	sender.err = errors.New("code=99991663")
	assert.Error(t, m.SendTemplatedMessage(ctx, 1, workflow.ChannelTeam, "followup_reminder"))
	assert.Empty(t, sender.sent)
}

func TestLogMessenger(t *testing.T) {
	m := NewLogMessenger(zap.NewNop())
	assert.NoError(t, m.SendTemplatedMessage(context.Background(), 1, workflow.ChannelClient, "client_quotation"))
}
