package messaging

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/autopeer-io/syncpeer/pkg/log"
	pkgmqtt "github.com/autopeer-io/syncpeer/pkg/mqtt"
	"github.com/autopeer-io/syncpeer/pkg/mqtt/topic"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

// Pinger is implemented by backends that can report transport health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects a backend and carries its connection settings.
type Config struct {
	Messaging *options.MessagingOptions
	MQTT      *options.MqttOptions
	Redis     *options.RedisOptions

	// ClientID identifies this process to the broker: MQTT client id or Redis consumer name.
	ClientID string
}

// Open connects the configured backend. The MQTT client connects in the
// background and keeps reconnecting until Close.
func Open(ctx context.Context, cfg *Config) (Channel, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		host, _ := os.Hostname()
		clientID = "syncpeer-" + host
	}

	switch cfg.Messaging.Backend {
	case options.BackendMQTT:
		mc := cfg.MQTT.ToClientConfig()
		if mc.ClientID == "" {
			mc.ClientID = clientID
		}
		client, err := pkgmqtt.NewClient(mc)
		if err != nil {
			return nil, err
		}
		if err := client.Start(ctx); err != nil {
			return nil, fmt.Errorf("start mqtt client: %w", err)
		}
		log.Info("Message channel opened", "backend", "mqtt", "broker", cfg.MQTT.Broker, "clientID", mc.ClientID)
		return NewMQTT(client, topic.NewBuilder(cfg.MQTT.TopicRoot), cfg.MQTT.QoS, cfg.Messaging), nil

	case options.BackendRedis:
		client := redis.NewClient(cfg.Redis.ToRedisOptions())
		log.Info("Message channel opened", "backend", "redis", "addr", cfg.Redis.Addr, "consumer", clientID)
		return NewRedis(client, cfg.Redis, cfg.Messaging, clientID), nil

	default:
		return nil, fmt.Errorf("unknown messaging backend %q", cfg.Messaging.Backend)
	}
}
