package core

import (
	"context"

	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
)

// CommandNotifier delivers commands to agents. key is an agent id or the
// broadcast key.
type CommandNotifier interface {
	Notify(ctx context.Context, key string, cmd *fleetv1alpha1.Command) error
}
