package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/syncpeer/pkg/clock"
)

var _ IOptions = (*ClockOptions)(nil)

// ClockOptions configures the clock synchronizer.
// An empty server list trusts the local clock.
type ClockOptions struct {
	Servers      []string      `json:"servers" mapstructure:"servers"`
	QueryTimeout time.Duration `json:"query-timeout" mapstructure:"query-timeout"`
	Samples      int           `json:"samples" mapstructure:"samples"`
	StaleAfter   time.Duration `json:"stale-after" mapstructure:"stale-after"`
	FreshAfter   time.Duration `json:"fresh-after" mapstructure:"fresh-after"`
	RetryAfter   time.Duration `json:"retry-after" mapstructure:"retry-after"`
	MaxDrift     float64       `json:"max-drift" mapstructure:"max-drift"`
}

func NewClockOptions() *ClockOptions {
	return &ClockOptions{
		Servers:      []string{"pool.ntp.org", "time.google.com", "time.cloudflare.com"},
		QueryTimeout: 2 * time.Second,
		Samples:      3,
		StaleAfter:   time.Hour,
		FreshAfter:   time.Minute,
		RetryAfter:   clock.DefaultRetryAfter,
		MaxDrift:     clock.DefaultMaxDrift,
	}
}

func (o *ClockOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.Samples < 1 {
		errs = append(errs, errors.New("--clock.samples must be at least 1"))
	}
	if o.FreshAfter <= 0 || o.StaleAfter < o.FreshAfter {
		errs = append(errs, errors.New("--clock.stale-after must be >= --clock.fresh-after > 0"))
	}
	if o.RetryAfter <= 0 {
		errs = append(errs, errors.New("--clock.retry-after must be positive"))
	}
	if o.MaxDrift < 0 {
		errs = append(errs, errors.New("--clock.max-drift must not be negative"))
	}
	return errs
}

func (o *ClockOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringSliceVar(&o.Servers, join(prefixes, "clock.servers"), o.Servers, "NTP servers queried for the reference time. Empty trusts the local clock.")
	fs.DurationVar(&o.QueryTimeout, join(prefixes, "clock.query-timeout"), o.QueryTimeout, "Timeout of a single NTP query.")
	fs.IntVar(&o.Samples, join(prefixes, "clock.samples"), o.Samples, "Number of successful references combined per sync.")
	fs.DurationVar(&o.StaleAfter, join(prefixes, "clock.stale-after"), o.StaleAfter, "Age after which the offset is re-measured automatically.")
	fs.DurationVar(&o.FreshAfter, join(prefixes, "clock.fresh-after"), o.FreshAfter, "Maximum offset age accepted when scheduling an execution.")
	fs.DurationVar(&o.RetryAfter, join(prefixes, "clock.retry-after"), o.RetryAfter, "First wait before retrying after every reference failed; doubles per failure.")
	fs.Float64Var(&o.MaxDrift, join(prefixes, "clock.max-drift"), o.MaxDrift, "Upper bound on the extrapolated drift rate in seconds per second.")
}

// NewSynchronizer builds a synchronizer backed by the configured NTP servers.
func (o *ClockOptions) NewSynchronizer() *clock.Synchronizer {
	sources := make([]clock.Source, 0, len(o.Servers))
	for _, s := range o.Servers {
		sources = append(sources, clock.NewNTPSource(s, o.QueryTimeout))
	}
	return clock.NewSynchronizer(sources,
		clock.WithSamples(o.Samples),
		clock.WithStaleAfter(o.StaleAfter),
		clock.WithFreshAfter(o.FreshAfter),
		clock.WithRetryAfter(o.RetryAfter),
		clock.WithMaxDrift(o.MaxDrift),
	)
}
