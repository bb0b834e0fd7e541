package queue

import "context"

// The broker only carries wake-up nudges. A lost or duplicated message never affects
// correctness because workers also poll the store.
const (
	// ReadyQueue receives one message per newly ingested delivery.
	ReadyQueue = "hookrelay.deliveries.ready"

	// readyMessageTTLMillis drops nudges nobody consumed; by then a poll has picked the delivery up.
	readyMessageTTLMillis int32 = 60_000
)

// Publisher publishes delivery-ready nudges.
type Publisher interface {
	Publish(ctx context.Context, msg DeliveryMessage) error
	Close() error
}

// MessageHandler handles a consumed nudge.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery-ready nudges.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}
