package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

// base carries the behaviour shared by every backend: de-duplication, the
// malformed-message policy, the retry loop and subscription bookkeeping.
type base struct {
	name             string
	dedupe           *Deduper
	requeueMalformed bool
	retryBase        time.Duration
	retryMax         time.Duration
	publishTimeout   time.Duration

	lifecycle sync.Mutex
	closed    bool
	cancels   []context.CancelFunc
	wg        sync.WaitGroup
}

func (b *base) init(name string, o *options.MessagingOptions) {
	if o == nil {
		o = options.NewMessagingOptions()
	}
	b.name = name
	b.dedupe = NewDeduper(o.DedupeTTL)
	b.requeueMalformed = o.RequeueMalformed
	b.retryBase = o.RetryBase
	b.retryMax = o.RetryMax
	b.publishTimeout = o.PublishTimeout
}

// dispatch decodes one raw message and hands it to h. It reports whether the
// message should be acknowledged.
func (b *base) dispatch(ctx context.Context, topic Topic, group string, data []byte, h Handler) bool {
	d, err := decode(data)
	if err != nil {
		metrics.MessagesConsumed.WithLabelValues(string(topic), "malformed").Inc()
		log.Error(err, "Dropping malformed message", "backend", b.name, "topic", topic, "group", group, "requeue", b.requeueMalformed)
		return !b.requeueMalformed
	}

	dedupeKey := group + "/" + d.ID
	if !b.dedupe.First(dedupeKey) {
		metrics.MessagesConsumed.WithLabelValues(string(topic), "duplicate").Inc()
		log.Debug("Skipping duplicate delivery", "topic", topic, "id", d.ID)
		return true
	}

	if err := h(ctx, d); err != nil {
		b.dedupe.Forget(dedupeKey)
		metrics.MessagesConsumed.WithLabelValues(string(topic), "failed").Inc()
		log.Error(err, "Message handler failed", "backend", b.name, "topic", topic, "key", d.Key, "id", d.ID)
		// Undecodable bodies will not get better on redelivery.
		return errors.Is(err, ErrMalformed) && !b.requeueMalformed
	}

	metrics.MessagesConsumed.WithLabelValues(string(topic), "handled").Inc()
	return true
}

// track registers a subscription goroutine and returns its context, or false once closed.
func (b *base) track(ctx context.Context) (context.Context, bool) {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	if b.closed {
		return nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	b.wg.Add(1)
	return ctx, true
}

// subscribeAsync runs subscribe forever, backing off exponentially after failures.
func (b *base) subscribeAsync(ctx context.Context, topic Topic, group string, h Handler,
	subscribe func(context.Context, Topic, string, Handler) error) {
	ctx, ok := b.track(ctx)
	if !ok {
		log.Warn("Channel closed, subscription ignored", "topic", topic, "group", group)
		return
	}

	go func() {
		defer b.wg.Done()

		backoff := retry.NewExponential(b.retryBase)
		backoff = retry.WithJitterPercent(10, backoff)
		backoff = retry.WithCappedDuration(b.retryMax, backoff)

		_ = retry.Do(ctx, backoff, func(ctx context.Context) error {
			err := subscribe(ctx, topic, group, h)
			if ctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errors.New("subscription ended unexpectedly")
			}
			log.Error(err, "Subscription failed, retrying", "backend", b.name, "topic", topic, "group", group)
			return retry.RetryableError(err)
		})
		log.Debug("Subscription stopped", "topic", topic, "group", group)
	}()
}

// shutdown cancels every subscription and waits for them, bounded by ctx.
func (b *base) shutdown(ctx context.Context) error {
	b.lifecycle.Lock()
	b.closed = true
	cancels := b.cancels
	b.cancels = nil
	b.lifecycle.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *base) isClosed() bool {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	return b.closed
}

func (b *base) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.publishTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.publishTimeout)
}

func recordPublish(topic Topic, ok bool) bool {
	metrics.MessagesPublished.WithLabelValues(string(topic), metrics.Result(ok)).Inc()
	return ok
}
