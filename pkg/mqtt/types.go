package mqtt

import "context"

// MessageHandler receives one inbound publish. Handlers run on the paho
// router goroutine and must hand slow work off.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the subset of an MQTT v5 session the messaging channel relies on.
// Subscriptions survive reconnects.
type Client interface {
	// Start connects in the background; AwaitConnection blocks until done.
	Start(ctx context.Context) error
	AwaitConnection(ctx context.Context) error
	IsConnected() bool
	Disconnect(ctx context.Context)

	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error
	Unsubscribe(ctx context.Context, filter string) error
}
