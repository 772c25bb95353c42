package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/paho"
)

const (
	DefaultKeepAlive      uint16 = 60
	DefaultConnectTimeout        = 5 * time.Second
	DefaultReconnectDelay        = 3 * time.Second
)

// ClientConfig describes one broker session.
type ClientConfig struct {
	// BrokerURL is scheme://host:port; ssl, tls, mqtts and wss enable TLS.
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// KeepAlive is in seconds.
	KeepAlive      uint16
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration

	// CleanStart drops the broker session on the first connect. Agents keep
	// it false so QoS 1 commands queued while they were offline arrive.
	CleanStart bool
	// SessionExpiry is how long, in seconds, the broker keeps the session
	// after a disconnect.
	SessionExpiry uint32

	InsecureSkipVerify bool

	// WillTopic enables a last will published by the broker when the client
	// disappears without DISCONNECT.
	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool
}

func (c *ClientConfig) applyDefaults() {
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
}

func (c *ClientConfig) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("broker url is required")
	}
	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("broker url %q is not scheme://host:port", c.BrokerURL)
	}
	if c.ClientID == "" {
		return errors.New("client id is required")
	}
	if c.WillQoS > 2 {
		return fmt.Errorf("will qos %d out of range", c.WillQoS)
	}
	return nil
}

func (c *ClientConfig) will() *paho.WillMessage {
	if c.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{Topic: c.WillTopic, Payload: c.WillPayload, QoS: c.WillQoS, Retain: c.WillRetain}
}
