package notifier

import (
	"context"
	"errors"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
)

// ErrNotDelivered is returned when the channel refused a command.
var ErrNotDelivered = errors.New("command not delivered")

var _ core.CommandNotifier = (*ChannelNotifier)(nil)

// ChannelNotifier publishes commands on the commands topic.
type ChannelNotifier struct {
	ch messaging.Channel
}

func NewChannelNotifier(ch messaging.Channel) *ChannelNotifier {
	return &ChannelNotifier{ch: ch}
}

func (n *ChannelNotifier) Notify(ctx context.Context, key string, cmd *fleetv1alpha1.Command) error {
	if !n.ch.Publish(ctx, messaging.TopicCommands, key, cmd) {
		return ErrNotDelivered
	}
	return nil
}
