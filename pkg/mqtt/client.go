package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/syncpeer/pkg/log"
)

// ErrNotStarted is returned by operations issued before Start.
var ErrNotStarted = errors.New("mqtt client not started")

// session is the autopaho backed Client. It remembers every subscription so
// it can restore them on each CONNACK, including after a clean start.
type session struct {
	cfg *ClientConfig
	cm  *autopaho.ConnectionManager

	// ctx is the Start context, handed to message handlers.
	ctx context.Context

	up atomic.Bool

	mu   sync.RWMutex
	subs map[string]subscription

	qmu     sync.Mutex
	inboxes map[string]*inbox
}

// inbox holds the publishes matched by one subscription that wait for its
// handler. At most one goroutine drains it, so a handler sees its publishes in
// arrival order even when they come in on different topics.
type inbox struct {
	queue []received
}

type received struct {
	topic   string
	payload []byte
	handler MessageHandler
}

type subscription struct {
	qos     byte
	match   string
	handler MessageHandler
}

// NewClient validates cfg, filling defaults, and returns an unstarted client.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}
	return &session{
		cfg:     cfg,
		ctx:     context.Background(),
		subs:    make(map[string]subscription),
		inboxes: make(map[string]*inbox),
	}, nil
}

func (s *session) Start(ctx context.Context) error {
	broker, err := url.Parse(s.cfg.BrokerURL)
	if err != nil {
		return err
	}

	cc := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     s.cfg.KeepAlive,
		CleanStartOnInitialConnection: s.cfg.CleanStart,
		SessionExpiryInterval:         s.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(s.cfg.ReconnectDelay),
		ConnectTimeout:                s.cfg.ConnectTimeout,
		ConnectUsername:               s.cfg.Username,
		ConnectPassword:               []byte(s.cfg.Password),
		WillMessage:                   s.cfg.will(),
		OnConnectionUp:                s.connectionUp,
		OnConnectError: func(err error) {
			s.up.Store(false)
			log.Warn("MQTT connect attempt failed", "broker", s.cfg.BrokerURL, "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID:          s.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){s.dispatch},
			OnClientError: func(err error) {
				s.up.Store(false)
				log.Error(err, "MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				s.up.Store(false)
				var reason string
				if d.Properties != nil {
					reason = d.Properties.ReasonString
				}
				log.Warn("MQTT broker closed the session", "code", d.ReasonCode, "reason", reason)
			},
		},
	}
	if isTLS(broker.Scheme) {
		cc.TlsCfg = &tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipVerify} //nolint:gosec
	}

	log.Info("Connecting to MQTT broker", "broker", s.cfg.BrokerURL, "clientID", s.cfg.ClientID)
	cm, err := autopaho.NewConnection(ctx, cc)
	if err != nil {
		return fmt.Errorf("failed to start mqtt connection: %w", err)
	}
	s.ctx, s.cm = ctx, cm
	return nil
}

func (s *session) AwaitConnection(ctx context.Context) error {
	if s.cm == nil {
		return ErrNotStarted
	}
	return s.cm.AwaitConnection(ctx)
}

func (s *session) IsConnected() bool { return s.up.Load() }

func (s *session) Disconnect(ctx context.Context) {
	if s.cm == nil {
		return
	}
	if err := s.cm.Disconnect(ctx); err != nil {
		log.Debug("MQTT disconnect", "error", err)
	}
	s.up.Store(false)
}

// Publish may be called concurrently; autopaho serialises writes.
func (s *session) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if s.cm == nil {
		return ErrNotStarted
	}
	_, err := s.cm.Publish(ctx, &paho.Publish{Topic: topic, QoS: byte(qos), Retain: retain, Payload: payload})
	return err
}

// Subscribe records the handler before sending SUBSCRIBE, so a failed packet
// is retried on the next connection.
func (s *session) Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error {
	if s.cm == nil {
		return ErrNotStarted
	}
	s.mu.Lock()
	s.subs[filter] = subscription{qos: byte(qos), match: stripShare(filter), handler: handler}
	s.mu.Unlock()

	if _, err := s.cm.Subscribe(ctx, subscribePacket(filter, byte(qos))); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	log.Debug("Subscribed", "filter", filter, "qos", qos)
	return nil
}

func (s *session) Unsubscribe(ctx context.Context, filter string) error {
	if s.cm == nil {
		return ErrNotStarted
	}
	s.mu.Lock()
	delete(s.subs, filter)
	s.mu.Unlock()

	_, err := s.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	return err
}

func (s *session) connectionUp(cm *autopaho.ConnectionManager, ack *paho.Connack) {
	s.up.Store(true)
	log.Info("MQTT connection up", "broker", s.cfg.BrokerURL, "sessionPresent", ack.SessionPresent)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for filter, sub := range s.subs {
		if _, err := cm.Subscribe(s.ctx, subscribePacket(filter, sub.qos)); err != nil {
			log.Error(err, "Failed to restore subscription", "filter", filter)
		}
	}
}

// dispatch queues a publish for every matching subscription, keeping the paho
// reader loop free. Publishes matched by one subscription are handled one
// after another.
func (s *session) dispatch(p paho.PublishReceived) (bool, error) {
	topic := p.Packet.Topic
	handled := false

	s.mu.RLock()
	for filter, sub := range s.subs {
		if MatchTopic(sub.match, topic) {
			s.enqueue(filter, received{topic: topic, payload: p.Packet.Payload, handler: sub.handler})
			handled = true
		}
	}
	s.mu.RUnlock()

	if !handled {
		log.Debug("No handler for topic", "topic", topic)
	}
	return true, nil
}

func (s *session) enqueue(filter string, r received) {
	s.qmu.Lock()
	defer s.qmu.Unlock()

	in, draining := s.inboxes[filter]
	if !draining {
		in = &inbox{}
		s.inboxes[filter] = in
		go s.drain(filter, in)
	}
	in.queue = append(in.queue, r)
}

// drain runs queued publishes until the inbox is empty, then drops it.
func (s *session) drain(filter string, in *inbox) {
	for {
		s.qmu.Lock()
		if len(in.queue) == 0 {
			delete(s.inboxes, filter)
			s.qmu.Unlock()
			return
		}
		next := in.queue[0]
		in.queue[0] = received{}
		in.queue = in.queue[1:]
		s.qmu.Unlock()

		next.handler(s.ctx, next.topic, next.payload)
	}
}

func subscribePacket(filter string, qos byte) *paho.Subscribe {
	return &paho.Subscribe{Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: qos}}}
}

func isTLS(scheme string) bool {
	switch scheme {
	case "ssl", "tls", "mqtts", "wss":
		return true
	}
	return false
}

// MatchTopic reports whether topic matches filter, honouring + and #.
func MatchTopic(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, level := range fl {
		switch {
		case level == "#":
			return true
		case i >= len(tl):
			return false
		case level != "+" && level != tl[i]:
			return false
		}
	}
	return len(fl) == len(tl)
}

// stripShare removes a $share/<group>/ prefix. Brokers deliver shared
// subscriptions on the plain topic.
func stripShare(filter string) string {
	if rest, ok := strings.CutPrefix(filter, "$share/"); ok {
		if _, topic, ok := strings.Cut(rest, "/"); ok {
			return topic
		}
	}
	return filter
}
