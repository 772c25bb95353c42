package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/internal/pkg/supervisor"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

type Config struct {
	ID         string
	IPAddress  string
	ConsoleURL string

	MetricsInterval time.Duration
	DiskPath        string
	GracePeriod     time.Duration
	WorkDir         string

	MessagingOptions *options.MessagingOptions
	MqttOptions      *options.MqttOptions
	RedisOptions     *options.RedisOptions
	ClockOptions     *options.ClockOptions
}

// NewAgent discovers the host identity, opens the message channel and wires
// the agent's collaborators.
func (cfg *Config) NewAgent(ctx context.Context) (*Agent, error) {
	ident := DiscoverIdentity(cfg.ID, cfg.IPAddress)
	if ident.ID == "" {
		return nil, fmt.Errorf("FATAL: unable to determine agent id")
	}

	ch, err := messaging.Open(ctx, &messaging.Config{
		Messaging: cfg.MessagingOptions,
		MQTT:      cfg.MqttOptions,
		Redis:     cfg.RedisOptions,
		ClientID:  "speer-agent-" + ident.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open message channel: %w", err)
	}

	opts := []Option{
		WithMetrics(NewHostCollector(cfg.DiskPath), cfg.MetricsInterval),
		WithWorkDir(cfg.WorkDir),
	}
	if cfg.ConsoleURL != "" {
		opts = append(opts, WithRegistrar(NewHTTPRegistrar(cfg.ConsoleURL, nil)))
	}

	return NewAgent(
		ident,
		ch,
		cfg.ClockOptions.NewSynchronizer(),
		supervisor.New(supervisor.WithGracePeriod(cfg.GracePeriod)),
		opts...,
	), nil
}
