package dispatcher

import (
	"context"

	"github.com/garyjia/quotation-workflow/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name      string     `json:"name"`
	EventType event.Type `json:"event_type"`
	Handler   Handler    `json:"-"`
}

// Publisher is the narrow publishing side used by workflow components
type Publisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}
