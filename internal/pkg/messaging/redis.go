package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

const (
	fieldKey  = "key"
	fieldID   = "id"
	fieldData = "data"
)

// Redis stores each topic in a stream and maps groups onto consumer groups.
// A group retains entries from its creation on. Unacknowledged entries stay
// in the group's pending list and are re-read by the same consumer name when
// it subscribes again.
type Redis struct {
	base

	client   *redis.Client
	prefix   string
	block    time.Duration
	maxLen   int64
	consumer string

	mu     sync.Mutex
	joined map[string]bool
}

var _ Channel = (*Redis)(nil)

// NewRedis wraps client. consumer must be stable across restarts of the same
// process so pending entries are recovered.
func NewRedis(client *redis.Client, ro *options.RedisOptions, o *options.MessagingOptions, consumer string) *Redis {
	if ro == nil {
		ro = options.NewRedisOptions()
	}
	r := &Redis{
		client:   client,
		prefix:   ro.StreamPrefix,
		block:    ro.Block,
		maxLen:   ro.MaxLen,
		consumer: consumer,
		joined:   make(map[string]bool),
	}
	r.init("redis", o)
	return r
}

func (r *Redis) stream(t Topic) string {
	return r.prefix + string(t)
}

func (r *Redis) Publish(ctx context.Context, t Topic, key string, msg any) bool {
	if r.isClosed() {
		return recordPublish(t, false)
	}
	data, id, err := encode(t, key, msg)
	if err != nil {
		log.Error(err, "Failed to encode message", "topic", t, "key", key)
		return recordPublish(t, false)
	}

	pctx, cancel := r.publishContext(ctx)
	defer cancel()

	err = r.client.XAdd(pctx, &redis.XAddArgs{
		Stream: r.stream(t),
		MaxLen: r.maxLen,
		Approx: true,
		Values: map[string]any{fieldKey: key, fieldID: id, fieldData: data},
	}).Err()
	if err != nil {
		log.Error(err, "Failed to publish message", "stream", r.stream(t), "key", key, "id", id)
		return recordPublish(t, false)
	}
	log.Debug("Published message", "backend", "redis", "stream", r.stream(t), "key", key, "id", id)
	return recordPublish(t, true)
}

func (r *Redis) Subscribe(ctx context.Context, t Topic, group string, h Handler) error {
	stream := r.stream(t)

	if err := r.ensureGroup(ctx, t, group); err != nil {
		return err
	}
	metrics.TransportConnected.Set(1)

	// Re-read our own pending entries first, then switch to new ones.
	cursor, pending := "0", true
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: r.consumer,
			Streams:  []string{stream, cursor},
			Count:    32,
			Block:    r.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			if pending {
				pending, cursor = false, ">"
			}
			continue
		}
		if isNoGroup(err) {
			// The server lost the stream or the group, so whatever the stream
			// holds now was published after that and is read from the start.
			log.Warn("Consumer group vanished, recreating", "stream", stream, "group", group)
			if err := r.createGroup(ctx, stream, group, "0"); err != nil {
				metrics.TransportConnected.Set(0)
				return err
			}
			cursor, pending = "0", true
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.TransportConnected.Set(0)
			return fmt.Errorf("read %s as %s/%s: %w", stream, group, r.consumer, err)
		}

		n := 0
		for _, s := range res {
			for _, m := range s.Messages {
				n++
				if pending {
					cursor = m.ID
				}
				if r.handle(ctx, t, group, m, h) {
					if err := r.client.XAck(ctx, stream, group, m.ID).Err(); err != nil && ctx.Err() == nil {
						log.Error(err, "Failed to acknowledge message", "stream", stream, "entry", m.ID)
					}
				}
			}
		}
		if pending && n == 0 {
			pending, cursor = false, ">"
		}
	}
}

// ensureGroup creates group on the topic's stream if missing. A new group
// starts at the stream's tail; entries published before it existed are not
// replayed, later ones are retained until read. A group this channel joined
// before and finds missing again is recreated from the stream's start.
func (r *Redis) ensureGroup(ctx context.Context, t Topic, group string) error {
	stream := r.stream(t)
	name := stream + "/" + group

	r.mu.Lock()
	start := "$"
	if r.joined[name] {
		start = "0"
	}
	r.mu.Unlock()

	if err := r.createGroup(ctx, stream, group, start); err != nil {
		return err
	}

	r.mu.Lock()
	r.joined[name] = true
	r.mu.Unlock()
	return nil
}

func (r *Redis) createGroup(ctx context.Context, stream, group, start string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, group, start).Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", group, stream, err)
	}
	return nil
}

func isNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}

func (r *Redis) handle(ctx context.Context, t Topic, group string, m redis.XMessage, h Handler) bool {
	data, ok := m.Values[fieldData].(string)
	if !ok {
		metrics.MessagesConsumed.WithLabelValues(string(t), "malformed").Inc()
		log.Error(ErrMalformed, "Stream entry without payload", "topic", t, "entry", m.ID)
		return !r.requeueMalformed
	}
	return r.dispatch(ctx, t, group, []byte(data), h)
}

func (r *Redis) SubscribeAsync(ctx context.Context, t Topic, group string, h Handler) {
	r.subscribeAsync(ctx, t, group, h, r.Subscribe)
}

// Ping checks the server connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close(ctx context.Context) error {
	err := r.shutdown(ctx)
	if cerr := r.client.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
