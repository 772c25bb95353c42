// Package console wires the orchestration service, the metrics aggregator and
// the console servers into one daemon.
package console

import (
	"context"
	"time"

	"github.com/autopeer-io/syncpeer/internal/console/server"
	"github.com/autopeer-io/syncpeer/internal/console/store"
	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/pkg/clock"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

type Console struct {
	serverManager *server.Manager
	timesync      *clock.Synchronizer
	channel       messaging.Channel
	store         *store.SQLiteStore
}

// Run synchronizes the clock and serves until ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	if offset, err := c.timesync.Sync(ctx); err != nil {
		log.Warn("Initial clock sync failed, trusting local time", "error", err)
	} else {
		log.Info("Clock synchronized", "offset", offset)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.channel.Close(shutdownCtx); err != nil {
			log.Error(err, "Failed to close message channel")
		}
		if err := c.store.Close(); err != nil {
			log.Error(err, "Failed to close record store")
		}
		log.Info("Console stopped")
	}()

	return c.serverManager.Start(ctx)
}
