// Package messaging is the publish/subscribe transport between the console and
// its agents. Backends deliver at least once; consumers must be idempotent.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Topic names a message stream.
type Topic string

const (
	// TopicCommands carries console to agent commands. Keys address one agent or KeyBroadcast.
	TopicCommands Topic = "commands"
	// TopicStatus carries agent status and result events.
	TopicStatus Topic = "status"
	// TopicMetrics carries periodic agent telemetry.
	TopicMetrics Topic = "metrics"
)

// KeyBroadcast addresses every agent on TopicCommands.
const KeyBroadcast = "broadcast"

func StatusKey(agentID string) string  { return "agent." + agentID + ".status" }
func ResultKey(agentID string) string  { return "agent." + agentID + ".result" }
func MetricsKey(agentID string) string { return "metrics.system." + agentID }

// Delivery is one received message.
type Delivery struct {
	ID      string
	Topic   Topic
	Key     string
	SentAt  time.Time
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (d *Delivery) Decode(v any) error {
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Handler processes a delivery. Returning an error leaves the message eligible for
// redelivery where the backend supports it.
type Handler func(ctx context.Context, d *Delivery) error

// Channel is the transport abstraction the rest of the system depends on.
type Channel interface {
	// Publish serialises msg and sends it durably. Failures are logged and reported
	// as false, never returned.
	Publish(ctx context.Context, topic Topic, key string, msg any) bool

	// Subscribe attaches handler to a durable subscription named group and blocks
	// until ctx is done (nil) or the transport fails (error).
	Subscribe(ctx context.Context, topic Topic, group string, handler Handler) error

	// SubscribeAsync runs Subscribe on its own goroutine, retrying with backoff
	// after transport failures until ctx is done.
	SubscribeAsync(ctx context.Context, topic Topic, group string, handler Handler)

	// Close waits for outstanding work and releases the transport.
	Close(ctx context.Context) error
}
