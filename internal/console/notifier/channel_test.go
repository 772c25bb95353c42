package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

func TestChannelNotifier(t *testing.T) {
	ch := messaging.NewMemory(options.NewMessagingOptions())
	n := NewChannelNotifier(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *messaging.Delivery, 1)
	ch.SubscribeAsync(ctx, messaging.TopicCommands, "agent-a1", func(_ context.Context, d *messaging.Delivery) error {
		got <- d
		return nil
	})

	cmd := &fleetv1alpha1.Command{CommandID: "c1", Type: fleetv1alpha1.CommandExecute, Command: "true"}
	require.NoError(t, n.Notify(ctx, "a1", cmd))

	select {
	case d := <-got:
		require.Equal(t, "a1", d.Key)
		var decoded fleetv1alpha1.Command
		require.NoError(t, d.Decode(&decoded))
		require.Equal(t, *cmd, decoded)
	case <-time.After(5 * time.Second):
		t.Fatal("command not delivered")
	}

	require.NoError(t, ch.Close(context.Background()))
	require.ErrorIs(t, n.Notify(ctx, "a1", cmd), ErrNotDelivered)
}
