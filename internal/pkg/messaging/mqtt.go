package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
	"github.com/autopeer-io/syncpeer/pkg/log"
	pkgmqtt "github.com/autopeer-io/syncpeer/pkg/mqtt"
	"github.com/autopeer-io/syncpeer/pkg/mqtt/topic"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

// MQTT maps (topic, key) onto {root}/{topic}/{key} and consumer groups onto
// shared subscriptions ($share/{group}/...). Durability relies on persistent
// sessions: clients connect with CleanStart=false and a session expiry.
type MQTT struct {
	base

	client pkgmqtt.Client
	topics *topic.Builder
	qos    int
}

var _ Channel = (*MQTT)(nil)

// NewMQTT wraps a started client.
func NewMQTT(client pkgmqtt.Client, topics *topic.Builder, qos int, o *options.MessagingOptions) *MQTT {
	m := &MQTT{client: client, topics: topics, qos: qos}
	m.init("mqtt", o)
	return m
}

func (m *MQTT) Publish(ctx context.Context, t Topic, key string, msg any) bool {
	if m.isClosed() {
		return recordPublish(t, false)
	}
	data, id, err := encode(t, key, msg)
	if err != nil {
		log.Error(err, "Failed to encode message", "topic", t, "key", key)
		return recordPublish(t, false)
	}

	pctx, cancel := m.publishContext(ctx)
	defer cancel()

	dest := m.topics.Build(string(t), key)
	if err := m.client.Publish(pctx, dest, m.qos, false, data); err != nil {
		log.Error(err, "Failed to publish message", "topic", dest, "id", id)
		return recordPublish(t, false)
	}
	log.Debug("Published message", "backend", "mqtt", "topic", dest, "id", id)
	return recordPublish(t, true)
}

func (m *MQTT) Subscribe(ctx context.Context, t Topic, group string, h Handler) error {
	filter := m.topics.Shared(group).BuildWildcard(string(t))

	err := m.client.Subscribe(ctx, filter, m.qos, func(_ context.Context, _ string, payload []byte) {
		// MQTT acknowledges on receipt; a nack only matters for the logs here.
		m.dispatch(ctx, t, group, payload, h)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}

	<-ctx.Done()

	unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.client.Unsubscribe(unsubCtx, filter); err != nil {
		log.Debug("Unsubscribe failed", "topic", filter, "error", err)
	}
	return nil
}

func (m *MQTT) SubscribeAsync(ctx context.Context, t Topic, group string, h Handler) {
	m.subscribeAsync(ctx, t, group, h, m.Subscribe)
}

// Ping reports whether the broker connection is up.
func (m *MQTT) Ping(context.Context) error {
	connected := m.client.IsConnected()
	if connected {
		metrics.TransportConnected.Set(1)
		return nil
	}
	metrics.TransportConnected.Set(0)
	return fmt.Errorf("mqtt client is not connected")
}

func (m *MQTT) Close(ctx context.Context) error {
	err := m.shutdown(ctx)
	m.client.Disconnect(ctx)
	return err
}
