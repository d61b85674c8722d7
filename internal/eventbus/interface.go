package eventbus

import "context"

// TopicOrderCompleted carries order-completed events from the webhook intake
// to the sync controller.
const TopicOrderCompleted = "kledo.order.completed"

// EventHandler processes one decoded event payload.
type EventHandler func(ctx context.Context, payload []byte) error

// EventBus decouples webhook intake from sync processing.
type EventBus interface {
	Publish(ctx context.Context, topic string, event interface{}) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}
