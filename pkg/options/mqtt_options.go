package options

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/syncpeer/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions configures the broker session used by the mqtt messaging
// backend. Topics are laid out as {TopicRoot}/{topic}/{key}.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	// ClientID overrides the generated speer-<role>-<id> client id.
	ClientID string `json:"client-id" mapstructure:"client-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ReconnectDelay time.Duration `json:"reconnect-delay" mapstructure:"reconnect-delay"`

	// SessionExpiry keeps queued QoS 1 commands for an offline agent.
	SessionExpiry time.Duration `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart    bool          `json:"clean-start" mapstructure:"clean-start"`
	QoS           int           `json:"qos" mapstructure:"qos"`

	// InsecureSkipVerify is for test brokers with self-signed certificates.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "tcp://127.0.0.1:1883",
		KeepAlive:      time.Duration(mqtt.DefaultKeepAlive) * time.Second,
		ConnectTimeout: mqtt.DefaultConnectTimeout,
		ReconnectDelay: mqtt.DefaultReconnectDelay,
		SessionExpiry:  24 * time.Hour,
		QoS:            1,
		TopicRoot:      "syncpeer/v1",
	}
}

func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if u, err := url.Parse(o.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("--mqtt.broker %q is not scheme://host:port", o.Broker))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, errors.New("--mqtt.qos must be 0, 1 or 2"))
	}
	if o.KeepAlive < time.Second || o.KeepAlive > 65535*time.Second {
		errs = append(errs, errors.New("--mqtt.keep-alive must be between 1s and 65535s"))
	}
	if o.SessionExpiry < 0 {
		errs = append(errs, errors.New("--mqtt.session-expiry must not be negative"))
	}
	if o.TopicRoot == "" {
		errs = append(errs, errors.New("--mqtt.topic-root must not be empty"))
	}
	return errs
}

func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, join(prefixes, "mqtt.broker"), o.Broker, "MQTT broker URL; ssl://, mqtts:// and wss:// use TLS.")
	fs.StringVar(&o.Username, join(prefixes, "mqtt.username"), o.Username, "Broker username.")
	fs.StringVar(&o.Password, join(prefixes, "mqtt.password"), o.Password, "Broker password.")
	fs.StringVar(&o.ClientID, join(prefixes, "mqtt.client-id"), o.ClientID, "Client id override. Must be unique per process.")
	fs.DurationVar(&o.KeepAlive, join(prefixes, "mqtt.keep-alive"), o.KeepAlive, "Keep-alive interval, whole seconds.")
	fs.DurationVar(&o.ConnectTimeout, join(prefixes, "mqtt.connect-timeout"), o.ConnectTimeout, "Timeout of one connection attempt.")
	fs.DurationVar(&o.ReconnectDelay, join(prefixes, "mqtt.reconnect-delay"), o.ReconnectDelay, "Pause between connection attempts.")
	fs.DurationVar(&o.SessionExpiry, join(prefixes, "mqtt.session-expiry"), o.SessionExpiry, "How long the broker keeps the session of a disconnected client.")
	fs.BoolVar(&o.CleanStart, join(prefixes, "mqtt.clean-start"), o.CleanStart, "Drop the broker session on the first connection.")
	fs.IntVar(&o.QoS, join(prefixes, "mqtt.qos"), o.QoS, "QoS of every publish and subscription.")
	fs.BoolVar(&o.InsecureSkipVerify, join(prefixes, "mqtt.insecure-skip-verify"), o.InsecureSkipVerify, "Accept any broker certificate.")
	fs.StringVar(&o.TopicRoot, join(prefixes, "mqtt.topic-root"), o.TopicRoot, "Prefix of every topic.")
}

// ToClientConfig maps the options onto a client config. The caller fills in
// ClientID when it was not overridden.
func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		ClientID:           o.ClientID,
		Username:           o.Username,
		Password:           o.Password,
		KeepAlive:          uint16(o.KeepAlive / time.Second),
		ConnectTimeout:     o.ConnectTimeout,
		ReconnectDelay:     o.ReconnectDelay,
		CleanStart:         o.CleanStart,
		SessionExpiry:      uint32(o.SessionExpiry / time.Second),
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
