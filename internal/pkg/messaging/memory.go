package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

// Memory is an in-process backend with the same group semantics as the brokers:
// every group sees every message once, members of a group compete, and messages
// published before a group first subscribes are retained for it. Intended for
// tests and single-process setups; the log is never truncated.
type Memory struct {
	base

	mu     sync.Mutex
	topics map[Topic]*memoryTopic
}

type memoryTopic struct {
	entries [][]byte
	cursors map[string]int
	notify  chan struct{}
}

var _ Channel = (*Memory)(nil)

func NewMemory(o *options.MessagingOptions) *Memory {
	m := &Memory{topics: make(map[Topic]*memoryTopic)}
	m.init("memory", o)
	return m
}

func (m *Memory) topic(t Topic) *memoryTopic {
	mt, ok := m.topics[t]
	if !ok {
		mt = &memoryTopic{cursors: make(map[string]int), notify: make(chan struct{})}
		m.topics[t] = mt
	}
	return mt
}

func (m *Memory) Publish(_ context.Context, topic Topic, key string, msg any) bool {
	if m.isClosed() {
		return recordPublish(topic, false)
	}
	data, id, err := encode(topic, key, msg)
	if err != nil {
		log.Error(err, "Failed to encode message", "topic", topic, "key", key)
		return recordPublish(topic, false)
	}

	m.mu.Lock()
	mt := m.topic(topic)
	mt.entries = append(mt.entries, data)
	close(mt.notify)
	mt.notify = make(chan struct{})
	m.mu.Unlock()

	log.Debug("Published message", "backend", "memory", "topic", topic, "key", key, "id", id)
	return recordPublish(topic, true)
}

func (m *Memory) Subscribe(ctx context.Context, topic Topic, group string, h Handler) error {
	m.mu.Lock()
	mt := m.topic(topic)
	if _, ok := mt.cursors[group]; !ok {
		mt.cursors[group] = 0
	}
	m.mu.Unlock()

	for {
		m.mu.Lock()
		cur := mt.cursors[group]
		if cur < len(mt.entries) {
			data := mt.entries[cur]
			mt.cursors[group] = cur + 1
			m.mu.Unlock()

			if !m.dispatch(ctx, topic, group, data, h) {
				m.mu.Lock()
				if mt.cursors[group] > cur {
					mt.cursors[group] = cur
				}
				m.mu.Unlock()
				if !sleep(ctx, m.retryBase) {
					return nil
				}
			}
			continue
		}
		wake := mt.notify
		m.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Memory) SubscribeAsync(ctx context.Context, topic Topic, group string, h Handler) {
	m.subscribeAsync(ctx, topic, group, h, m.Subscribe)
}

func (m *Memory) Close(ctx context.Context) error {
	return m.shutdown(ctx)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
