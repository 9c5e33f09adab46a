package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/garyjia/quotation-workflow/internal/application/port"
	"github.com/garyjia/quotation-workflow/internal/domain/workflow"
)

// MessageSender is the raw IM send operation
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// Messenger implements port.Messenger with Lark interactive cards. Client messages
// go to the quotation's contact email; team messages go to the configured chat.
type Messenger struct {
	sender     MessageSender
	quotations port.QuotationRepository
	teamChatID string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewMessenger creates a Lark messenger sending at most rps messages per second
func NewMessenger(sender MessageSender, quotations port.QuotationRepository, teamChatID string, rps float64, burst int, logger *zap.Logger) *Messenger {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Messenger{
		sender:     sender,
		quotations: quotations,
		teamChatID: teamChatID,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// SendTemplatedMessage implements port.Messenger
func (m *Messenger) SendTemplatedMessage(ctx context.Context, documentID int64, channel workflow.Channel, templateID string) error {
	receiveIDType, receiveID, err := m.recipient(ctx, documentID, channel)
	if err != nil {
		return err
	}

	card, err := m.buildCard(ctx, documentID, templateID)
	if err != nil {
		return err
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	messageID, err := m.sender.SendMessage(ctx, receiveIDType, receiveID, "interactive", card)
	if err != nil {
		return fmt.Errorf("failed to send %s message: %w", templateID, err)
	}

	m.logger.Info("Templated message sent",
		zap.Int64("document_id", documentID),
		zap.String("channel", string(channel)),
		zap.String("template", templateID),
		zap.String("message_id", messageID))
	return nil
}

func (m *Messenger) recipient(ctx context.Context, documentID int64, channel workflow.Channel) (string, string, error) {
	switch channel {
	case workflow.ChannelTeam:
		if m.teamChatID == "" {
			return "", "", fmt.Errorf("team chat id is not configured")
		}
		return "chat_id", m.teamChatID, nil
	case workflow.ChannelClient:
		q, err := m.quotations.GetByID(ctx, documentID)
		if err != nil {
			return "", "", fmt.Errorf("load quotation: %w", err)
		}
		if q == nil || q.ClientContact == "" {
			return "", "", fmt.Errorf("quotation %d has no client contact", documentID)
		}
		return "email", q.ClientContact, nil
	default:
		return "", "", fmt.Errorf("unknown channel %q", channel)
	}
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardElement struct {
	Tag  string   `json:"tag"`
	Text cardText `json:"text"`
}

type card struct {
	Config struct {
		WideScreenMode bool `json:"wide_screen_mode"`
	} `json:"config"`
	Header struct {
		Title cardText `json:"title"`
	} `json:"header"`
	Elements []cardElement `json:"elements"`
}

func (m *Messenger) buildCard(ctx context.Context, documentID int64, templateID string) (string, error) {
	var c card
	c.Config.WideScreenMode = true
	c.Header.Title = cardText{Tag: "plain_text", Content: templateID}

	lines := []string{"**Quotation:** " + strconv.FormatInt(documentID, 10)}
	if q, err := m.quotations.GetByID(ctx, documentID); err == nil && q != nil {
		if q.ClientRef != "" {
			lines = append(lines, "**Client:** "+q.ClientRef)
		}
		if q.Amount > 0 {
			lines = append(lines, fmt.Sprintf("**Amount:** %.2f %s", q.Amount, q.Currency))
		}
	}
	for _, line := range lines {
		c.Elements = append(c.Elements, cardElement{Tag: "div", Text: cardText{Tag: "lark_md", Content: line}})
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal card: %w", err)
	}
	return string(data), nil
}

var _ port.Messenger = (*Messenger)(nil)

// LogMessenger records messages in the log instead of sending them
type LogMessenger struct {
	logger *zap.Logger
}

// NewLogMessenger creates a messenger for deployments without Lark credentials
func NewLogMessenger(logger *zap.Logger) *LogMessenger {
	return &LogMessenger{logger: logger}
}

// SendTemplatedMessage implements port.Messenger
func (m *LogMessenger) SendTemplatedMessage(ctx context.Context, documentID int64, channel workflow.Channel, templateID string) error {
	m.logger.Info("Message dispatched (log only)",
		zap.Int64("document_id", documentID),
		zap.String("channel", string(channel)),
		zap.String("template", templateID))
	return nil
}

var _ port.Messenger = (*LogMessenger)(nil)
