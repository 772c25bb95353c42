package mqtt

import (
	"context"
	"errors"
	"path"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"syncpeer/v1/commands/a1", "syncpeer/v1/commands/a1", true},
		{"syncpeer/v1/commands/+", "syncpeer/v1/commands/broadcast", true},
		{"syncpeer/v1/commands/+", "syncpeer/v1/commands/a1/extra", false},
		{"syncpeer/v1/#", "syncpeer/v1/status/agent.a1.status", true},
		{"syncpeer/v1/status/+", "syncpeer/v1/metrics/x", false},
		{"syncpeer/v1/+/x", "syncpeer/v1", false},
	}
	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			require.Equal(t, tt.want, MatchTopic(tt.filter, tt.topic))
		})
	}
}

func TestStripShare(t *testing.T) {
	require.Equal(t, "syncpeer/v1/status/+", stripShare("$share/console-status/syncpeer/v1/status/+"))
	require.Equal(t, "syncpeer/v1/status/+", stripShare("syncpeer/v1/status/+"))
	require.Equal(t, "$share/broken", stripShare("$share/broken"))
}

func TestNewClient(t *testing.T) {
	cfg := &ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "c1"}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	require.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	require.Equal(t, DefaultReconnectDelay, cfg.ReconnectDelay)
	require.Equal(t, DefaultKeepAlive, cfg.KeepAlive)
	require.Nil(t, cfg.will())

	ctx := context.Background()
	require.False(t, c.IsConnected())
	require.True(t, errors.Is(c.Publish(ctx, "t", 1, false, nil), ErrNotStarted))
	require.True(t, errors.Is(c.Subscribe(ctx, "t", 1, nil), ErrNotStarted))

	for _, bad := range []*ClientConfig{
		{},
		{BrokerURL: "127.0.0.1:1883", ClientID: "c1"},
		{BrokerURL: "tcp://127.0.0.1:1883"},
		{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "c1", WillQoS: 3},
	} {
		_, err := NewClient(bad)
		require.Error(t, err, "%+v", bad)
	}
}

func TestDispatchKeepsSubscriptionOrder(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "c1"})
	require.NoError(t, err)
	s := c.(*session)

	var (
		mu  sync.Mutex
		got []string
	)
	handler := func(_ context.Context, topic string, payload []byte) {
		if string(payload) == "0" {
			// A slow first message must not let later ones overtake it.
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, path.Base(topic)+":"+string(payload))
		mu.Unlock()
	}
	s.subs["syncpeer/v1/commands/+"] = subscription{match: "syncpeer/v1/commands/+", handler: handler}

	// An agent's prepare arrives on its own key, the abort on the broadcast key.
	const n = 20
	var want []string
	for i := 0; i < n; i++ {
		key := "a1"
		if i%2 == 1 {
			key = "broadcast"
		}
		handled, err := s.dispatch(paho.PublishReceived{
			Packet: &paho.Publish{Topic: "syncpeer/v1/commands/" + key, Payload: []byte(strconv.Itoa(i))},
		})
		require.NoError(t, err)
		require.True(t, handled)
		want = append(want, key+":"+strconv.Itoa(i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == n
	}, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	require.Equal(t, want, got)
	mu.Unlock()

	require.Eventually(t, func() bool {
		s.qmu.Lock()
		defer s.qmu.Unlock()
		return len(s.inboxes) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestDispatchWithoutHandler(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://127.0.0.1:1883", ClientID: "c1"})
	require.NoError(t, err)
	s := c.(*session)

	handled, err := s.dispatch(paho.PublishReceived{Packet: &paho.Publish{Topic: "nobody/listens"}})
	require.NoError(t, err)
	require.True(t, handled)
	require.Empty(t, s.inboxes)
}
