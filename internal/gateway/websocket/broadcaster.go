package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
	"github.com/agentdeck/agentdeck/internal/events"
	"github.com/agentdeck/agentdeck/internal/events/bus"
	"github.com/agentdeck/agentdeck/pkg/ws"
)

// SessionBroadcaster forwards session events from the bus to attached UIs.
// Event subjects double as notification actions, so events pass through with
// their type unchanged.
type SessionBroadcaster struct {
	hub          *Hub
	subscription bus.Subscription
	logger       *logger.Logger
}

// RegisterSessionNotifications subscribes the hub to every session event.
func RegisterSessionNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) *SessionBroadcaster {
	b := &SessionBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-session-broadcaster")),
	}
	if eventBus == nil {
		return b
	}

	sub, err := eventBus.Subscribe(events.SessionAll, func(ctx context.Context, event *bus.Event) error {
		msg, err := ws.NewNotification(event.Type, event.Data)
		if err != nil {
			b.logger.Error("failed to build websocket notification",
				zap.String("action", event.Type),
				zap.Error(err))
			return nil
		}
		b.hub.Broadcast(msg)
		return nil
	})
	if err != nil {
		b.logger.Error("failed to subscribe to session events", zap.Error(err))
		return b
	}
	b.subscription = sub

	go func() {
		<-ctx.Done()
		b.Close()
	}()

	return b
}

// Close drops the bus subscription.
func (b *SessionBroadcaster) Close() {
	if b.subscription != nil && b.subscription.IsValid() {
		_ = b.subscription.Unsubscribe()
	}
	b.subscription = nil
}
