// Package websocket connects the Lark long-lived event channel to the application.
package websocket

import (
	"context"
	"fmt"
	"sync"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
	larkdispatcher "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// ApprovalEventType is the customized event carrying approval instance updates
const ApprovalEventType = "approval_instance"

// EventHandler processes one raw approval_instance event
type EventHandler interface {
	HandleCustomizedEvent(ctx context.Context, event *larkevent.EventReq) error
}

// LarkAdapter wraps the Lark WebSocket SDK client and forwards approval
// events to the handler that turns them into workflow decisions.
type LarkAdapter struct {
	appID     string
	appSecret string
	handler   EventHandler
	logger    *zap.Logger

	wsClient *larkws.Client
	mu       sync.RWMutex
	started  bool
}

// LarkAdapterConfig holds configuration for the Lark WebSocket adapter.
type LarkAdapterConfig struct {
	AppID     string
	AppSecret string
}

// NewLarkAdapter creates a new Lark WebSocket adapter.
func NewLarkAdapter(cfg LarkAdapterConfig, handler EventHandler, logger *zap.Logger) *LarkAdapter {
	return &LarkAdapter{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		handler:   handler,
		logger:    logger,
	}
}

// Start opens the WebSocket connection and blocks until the context is cancelled or the client fails.
func (a *LarkAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("adapter already started")
	}

	// Verification token and encrypt key are unused in WebSocket mode
	sdkDispatcher := larkdispatcher.NewEventDispatcher("", "")
	sdkDispatcher.OnCustomizedEvent(ApprovalEventType, a.handle)

	a.wsClient = larkws.NewClient(
		a.appID,
		a.appSecret,
		larkws.WithEventHandler(sdkDispatcher),
	)

	a.started = true
	a.mu.Unlock()

	a.logger.Info("Starting Lark WebSocket adapter", zap.String("app_id", a.appID))

	if err := a.wsClient.Start(ctx); err != nil {
		a.mu.Lock()
		a.started = false
		a.mu.Unlock()
		a.logger.Error("Lark WebSocket client error", zap.Error(err))
		return fmt.Errorf("websocket client error: %w", err)
	}

	return nil
}

// Stop marks the adapter stopped. The SDK client itself stops when the Start context is cancelled.
func (a *LarkAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}

	a.started = false
	a.logger.Info("Lark WebSocket adapter stopped")
	return nil
}

// IsRunning returns whether the adapter is currently running.
func (a *LarkAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started
}

// handle forwards the event. Processing errors are logged and swallowed so the
// SDK does not redeliver events whose decision was already recorded or superseded.
func (a *LarkAdapter) handle(ctx context.Context, evt *larkevent.EventReq) error {
	a.logger.Debug("Received Lark event", zap.Int("body_length", len(evt.Body)))

	if err := a.handler.HandleCustomizedEvent(ctx, evt); err != nil {
		a.logger.Error("Failed to process Lark approval event", zap.Error(err))
	}
	return nil
}
