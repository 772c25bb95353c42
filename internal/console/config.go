package console

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/autopeer-io/syncpeer/internal/console/core/service"
	"github.com/autopeer-io/syncpeer/internal/console/monitoring"
	"github.com/autopeer-io/syncpeer/internal/console/notifier"
	"github.com/autopeer-io/syncpeer/internal/console/server"
	"github.com/autopeer-io/syncpeer/internal/console/storage"
	"github.com/autopeer-io/syncpeer/internal/console/store"
	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

type Config struct {
	PreparationLead time.Duration
	ResultTimeout   time.Duration
	SweepInterval   time.Duration
	Retention       time.Duration

	HttpOptions      *options.HttpOptions
	SQLiteOptions    *options.SQLiteOptions
	S3Options        *options.S3Options
	MessagingOptions *options.MessagingOptions
	MqttOptions      *options.MqttOptions
	RedisOptions     *options.RedisOptions
	ClockOptions     *options.ClockOptions
}

// NewConsole opens the record store and the message channel and wires the
// service into its servers.
func (cfg *Config) NewConsole(ctx context.Context) (*Console, error) {
	// 1. Infrastructure: record store (Secondary Adapter)
	repo, err := store.Open(ctx, cfg.SQLiteOptions)
	if err != nil {
		return nil, err
	}

	// 2. Infrastructure: result archive, optional
	svcOpts := []service.Option{
		service.WithPreparationLead(cfg.PreparationLead),
		service.WithResultTimeout(cfg.ResultTimeout),
	}
	if cfg.S3Options.Enabled() {
		archive, err := storage.NewMinIOArchive(cfg.S3Options)
		if err != nil {
			_ = repo.Close()
			return nil, err
		}
		if err := archive.CheckBucket(ctx); err != nil {
			// The archive is best effort; uploads are retried per result.
			log.Error(err, "Result archive bucket unavailable", "bucket", cfg.S3Options.BucketName)
		}
		svcOpts = append(svcOpts, service.WithArchive(archive))
	}

	// 3. Infrastructure: message channel and notifier
	host, _ := os.Hostname()
	ch, err := messaging.Open(ctx, &messaging.Config{
		Messaging: cfg.MessagingOptions,
		MQTT:      cfg.MqttOptions,
		Redis:     cfg.RedisOptions,
		ClientID:  "speer-console-" + host,
	})
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to open message channel: %w", err)
	}

	// 4. Core domain service
	timesync := cfg.ClockOptions.NewSynchronizer()
	svc := service.New(repo, notifier.NewChannelNotifier(ch), timesync, svcOpts...)
	agg := monitoring.NewAggregator(monitoring.WithRetention(cfg.Retention))

	// 5. Ingress servers (Primary Adapters)
	mgr := server.NewManager(&server.Config{
		HttpOptions: cfg.HttpOptions,
		Channel:     ch,
		Aggregator:  agg,
		Readiness:   repo.Ping,

		SweepInterval: cfg.SweepInterval,
	}, svc)

	return &Console{
		serverManager: mgr,
		timesync:      timesync,
		channel:       ch,
		store:         repo,
	}, nil
}
