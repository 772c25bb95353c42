package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/syncpeer/internal/console"
	"github.com/autopeer-io/syncpeer/internal/console/core/service"
	"github.com/autopeer-io/syncpeer/internal/console/monitoring"
	"github.com/autopeer-io/syncpeer/internal/console/server/sweeper"
	"github.com/autopeer-io/syncpeer/pkg/app"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

// OrchestrationOptions tunes scheduling, result deadlines and metrics retention.
type OrchestrationOptions struct {
	PreparationLead time.Duration `json:"preparation-lead" mapstructure:"preparation-lead"`
	ResultTimeout   time.Duration `json:"result-timeout" mapstructure:"result-timeout"`
	SweepInterval   time.Duration `json:"sweep-interval" mapstructure:"sweep-interval"`
	Retention       time.Duration `json:"metrics-retention" mapstructure:"metrics-retention"`
}

func NewOrchestrationOptions() *OrchestrationOptions {
	return &OrchestrationOptions{
		PreparationLead: service.DefaultPreparationLead,
		ResultTimeout:   service.DefaultResultTimeout,
		SweepInterval:   sweeper.DefaultInterval,
		Retention:       monitoring.DefaultRetention,
	}
}

func (o *OrchestrationOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.PreparationLead, "console.preparation-lead", o.PreparationLead, "Time between dispatching a prepare command and the synchronized start.")
	fs.DurationVar(&o.ResultTimeout, "console.result-timeout", o.ResultTimeout, "How long results are awaited past the scheduled start and the command timeout before missing agents are marked errored.")
	fs.DurationVar(&o.SweepInterval, "console.sweep-interval", o.SweepInterval, "How often overdue executions are looked for.")
	fs.DurationVar(&o.Retention, "console.metrics-retention", o.Retention, "How long agent metrics samples are kept in memory.")
}

func (o *OrchestrationOptions) Validate() []error {
	errs := []error{}
	if o.PreparationLead <= 0 {
		errs = append(errs, errors.New("--console.preparation-lead must be positive"))
	}
	if o.ResultTimeout <= 0 {
		errs = append(errs, errors.New("--console.result-timeout must be positive"))
	}
	if o.SweepInterval <= 0 {
		errs = append(errs, errors.New("--console.sweep-interval must be positive"))
	}
	if o.Retention <= 0 {
		errs = append(errs, errors.New("--console.metrics-retention must be positive"))
	}
	return errs
}

type ConsoleOptions struct {
	Console          *OrchestrationOptions     `json:"console" mapstructure:"console"`
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	SQLiteOptions    *options.SQLiteOptions    `json:"sqlite" mapstructure:"sqlite"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	MessagingOptions *options.MessagingOptions `json:"messaging" mapstructure:"messaging"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	RedisOptions     *options.RedisOptions     `json:"redis" mapstructure:"redis"`
	ClockOptions     *options.ClockOptions     `json:"clock" mapstructure:"clock"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*ConsoleOptions)(nil)

func NewConsoleOptions() *ConsoleOptions {
	o := &ConsoleOptions{
		Console:          NewOrchestrationOptions(),
		HttpOptions:      options.NewHttpOptions(),
		SQLiteOptions:    options.NewSQLiteOptions(),
		S3Options:        options.NewS3Options(),
		MessagingOptions: options.NewMessagingOptions(),
		MqttOptions:      options.NewMqttOptions(),
		RedisOptions:     options.NewRedisOptions(),
		ClockOptions:     options.NewClockOptions(),
		Log:              log.NewOptions(),
	}

	return o
}

func (o *ConsoleOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Console.AddFlags(fss.FlagSet("console"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.SQLiteOptions.AddFlags(fss.FlagSet("sqlite"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.MessagingOptions.AddFlags(fss.FlagSet("messaging"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.ClockOptions.AddFlags(fss.FlagSet("clock"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *ConsoleOptions) Complete() error {
	return nil
}

func (o *ConsoleOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Console.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.SQLiteOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.MessagingOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.ClockOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *ConsoleOptions) Config() (*console.Config, error) {
	return &console.Config{
		PreparationLead:  o.Console.PreparationLead,
		ResultTimeout:    o.Console.ResultTimeout,
		SweepInterval:    o.Console.SweepInterval,
		Retention:        o.Console.Retention,
		HttpOptions:      o.HttpOptions,
		SQLiteOptions:    o.SQLiteOptions,
		S3Options:        o.S3Options,
		MessagingOptions: o.MessagingOptions,
		MqttOptions:      o.MqttOptions,
		RedisOptions:     o.RedisOptions,
		ClockOptions:     o.ClockOptions,
	}, nil
}
