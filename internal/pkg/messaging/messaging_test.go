package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/syncpeer/pkg/options"
)

type sample struct {
	Name string            `json:"name"`
	N    int               `json:"n"`
	Tags map[string]string `json:"tags"`
	At   time.Time         `json:"at"`
}

type collector struct {
	mu   sync.Mutex
	got  []*Delivery
	fail int
}

func (c *collector) handle(_ context.Context, d *Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail > 0 {
		c.fail--
		return errors.New("transient")
	}
	c.got = append(c.got, d)
	return nil
}

func (c *collector) deliveries() []*Delivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Delivery(nil), c.got...)
}

func (c *collector) waitFor(t *testing.T, n int) []*Delivery {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.deliveries()) >= n }, 5*time.Second, 10*time.Millisecond)
	return c.deliveries()
}

func fastOptions() *options.MessagingOptions {
	o := options.NewMessagingOptions()
	o.RetryBase = 10 * time.Millisecond
	o.RetryMax = 50 * time.Millisecond
	return o
}

// exerciseRoundTrip is shared by every backend.
func exerciseRoundTrip(t *testing.T, ch Channel) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := sample{Name: "cpu", N: 42, Tags: map[string]string{"agent": "a1"}, At: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)}

	// Published while the group has no consumer attached: retained for it.
	if g, ok := ch.(interface {
		ensureGroup(context.Context, Topic, string) error
	}); ok {
		require.NoError(t, g.ensureGroup(ctx, TopicMetrics, "console-metrics"))
	}
	require.True(t, ch.Publish(ctx, TopicMetrics, MetricsKey("a1"), want))

	c := &collector{}
	ch.SubscribeAsync(ctx, TopicMetrics, "console-metrics", c.handle)

	require.True(t, ch.Publish(ctx, TopicMetrics, MetricsKey("a2"), want))

	got := c.waitFor(t, 2)
	require.Equal(t, MetricsKey("a1"), got[0].Key)
	require.Equal(t, MetricsKey("a2"), got[1].Key)
	require.Equal(t, TopicMetrics, got[0].Topic)
	require.NotEqual(t, got[0].ID, got[1].ID)

	var decoded sample
	require.NoError(t, got[0].Decode(&decoded))
	if diff := cmp.Diff(want, decoded); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, ch.Close(context.Background()))
	require.False(t, ch.Publish(ctx, TopicMetrics, "k", want))
}

func TestMemoryRoundTrip(t *testing.T) {
	exerciseRoundTrip(t, NewMemory(fastOptions()))
}

func TestMemoryGroups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory(fastOptions())
	defer m.Close(context.Background())

	a, b, other := &collector{}, &collector{}, &collector{}
	m.SubscribeAsync(ctx, TopicStatus, "console-status", a.handle)
	m.SubscribeAsync(ctx, TopicStatus, "console-status", b.handle)
	m.SubscribeAsync(ctx, TopicStatus, "archiver", other.handle)

	for i := 0; i < 10; i++ {
		require.True(t, m.Publish(ctx, TopicStatus, StatusKey("a1"), sample{N: i}))
	}

	other.waitFor(t, 10)
	require.Eventually(t, func() bool {
		return len(a.deliveries())+len(b.deliveries()) == 10
	}, 5*time.Second, 10*time.Millisecond)

	seen := map[string]bool{}
	for _, d := range append(a.deliveries(), b.deliveries()...) {
		require.False(t, seen[d.ID], "message %s delivered twice within a group", d.ID)
		seen[d.ID] = true
	}
}

func TestMemoryRedeliversAfterHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory(fastOptions())
	defer m.Close(context.Background())

	c := &collector{fail: 2}
	m.SubscribeAsync(ctx, TopicCommands, "agent-a1", c.handle)
	require.True(t, m.Publish(ctx, TopicCommands, KeyBroadcast, sample{Name: "x"}))

	got := c.waitFor(t, 1)
	require.Len(t, got, 1)
}

func TestDispatchPolicies(t *testing.T) {
	ctx := context.Background()
	data, _, err := encode(TopicStatus, "k", sample{Name: "x"})
	require.NoError(t, err)

	var b base
	b.init("test", fastOptions())

	calls := 0
	h := func(context.Context, *Delivery) error { calls++; return nil }

	require.True(t, b.dispatch(ctx, TopicStatus, "g1", data, h))
	require.True(t, b.dispatch(ctx, TopicStatus, "g1", data, h), "duplicates are acknowledged")
	require.Equal(t, 1, calls)

	require.True(t, b.dispatch(ctx, TopicStatus, "g2", data, h), "groups dedupe independently")
	require.Equal(t, 2, calls)

	require.True(t, b.dispatch(ctx, TopicStatus, "g1", []byte("{not json"), h), "malformed dropped by default")

	o := fastOptions()
	o.RequeueMalformed = true
	var strict base
	strict.init("strict", o)
	require.False(t, strict.dispatch(ctx, TopicStatus, "g1", []byte("{not json"), h))

	decodeFail := func(_ context.Context, d *Delivery) error {
		var v []int
		return d.Decode(&v)
	}
	data2, _, _ := encode(TopicStatus, "k", sample{})
	require.True(t, b.dispatch(ctx, TopicStatus, "g3", data2, decodeFail))
	require.False(t, strict.dispatch(ctx, TopicStatus, "g3", data2, decodeFail))
}

func TestEnvelope(t *testing.T) {
	data, id, err := encode(TopicCommands, KeyBroadcast, map[string]string{"a": "b"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	d, err := decode(data)
	require.NoError(t, err)
	require.Equal(t, id, d.ID)
	require.Equal(t, KeyBroadcast, d.Key)
	require.JSONEq(t, `{"a":"b"}`, string(d.Payload))

	_, err = decode([]byte(`{"id":"x"}`))
	require.ErrorIs(t, err, ErrMalformed)

	_, _, err = encode(TopicCommands, "k", make(chan int))
	require.Error(t, err)
}

func TestKeys(t *testing.T) {
	require.Equal(t, "agent.a1.status", StatusKey("a1"))
	require.Equal(t, "agent.a1.result", ResultKey("a1"))
	require.Equal(t, "metrics.system.a1", MetricsKey("a1"))
	require.True(t, json.Valid([]byte(`"`+KeyBroadcast+`"`)))
}
