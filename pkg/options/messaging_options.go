package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*MessagingOptions)(nil)

const (
	BackendMQTT  = "mqtt"
	BackendRedis = "redis"
)

// MessagingOptions selects and tunes the message channel backend.
type MessagingOptions struct {
	Backend string `json:"backend" mapstructure:"backend"`

	// RequeueMalformed leaves undecodable messages pending instead of acknowledging them.
	RequeueMalformed bool `json:"requeue-malformed" mapstructure:"requeue-malformed"`

	// DedupeTTL is how long a delivered message id is remembered.
	DedupeTTL time.Duration `json:"dedupe-ttl" mapstructure:"dedupe-ttl"`

	RetryBase time.Duration `json:"retry-base" mapstructure:"retry-base"`
	RetryMax  time.Duration `json:"retry-max" mapstructure:"retry-max"`

	PublishTimeout time.Duration `json:"publish-timeout" mapstructure:"publish-timeout"`
}

func NewMessagingOptions() *MessagingOptions {
	return &MessagingOptions{
		Backend:        BackendMQTT,
		DedupeTTL:      10 * time.Minute,
		RetryBase:      time.Second,
		RetryMax:       30 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

func (o *MessagingOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	switch o.Backend {
	case BackendMQTT, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("--messaging.backend must be %q or %q, got %q", BackendMQTT, BackendRedis, o.Backend))
	}
	if o.RetryBase <= 0 || o.RetryMax < o.RetryBase {
		errs = append(errs, fmt.Errorf("--messaging.retry-max must be >= --messaging.retry-base > 0"))
	}
	return errs
}

func (o *MessagingOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Backend, join(prefixes, "messaging.backend"), o.Backend, "Message channel backend: mqtt or redis.")
	fs.BoolVar(&o.RequeueMalformed, join(prefixes, "messaging.requeue-malformed"), o.RequeueMalformed, "Leave malformed messages pending for redelivery instead of dropping them.")
	fs.DurationVar(&o.DedupeTTL, join(prefixes, "messaging.dedupe-ttl"), o.DedupeTTL, "How long delivered message ids are remembered for de-duplication.")
	fs.DurationVar(&o.RetryBase, join(prefixes, "messaging.retry-base"), o.RetryBase, "Initial backoff after a transport failure.")
	fs.DurationVar(&o.RetryMax, join(prefixes, "messaging.retry-max"), o.RetryMax, "Maximum backoff after repeated transport failures.")
	fs.DurationVar(&o.PublishTimeout, join(prefixes, "messaging.publish-timeout"), o.PublishTimeout, "Timeout of a single publish.")
}
