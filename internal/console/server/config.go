package server

import (
	"time"

	"github.com/autopeer-io/syncpeer/internal/console/monitoring"
	"github.com/autopeer-io/syncpeer/internal/console/server/http"
	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

type Config struct {
	HttpOptions *options.HttpOptions

	Channel    messaging.Channel
	Aggregator *monitoring.Aggregator
	Readiness  http.ReadinessCheck

	// SweepInterval is how often overdue executions are expired.
	SweepInterval time.Duration
}
