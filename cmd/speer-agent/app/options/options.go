package options

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/syncpeer/internal/agent"
	"github.com/autopeer-io/syncpeer/pkg/app"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

// RuntimeOptions configures the agent itself.
type RuntimeOptions struct {
	ID              string        `json:"id" mapstructure:"id"`
	IPAddress       string        `json:"ip-address" mapstructure:"ip-address"`
	ConsoleURL      string        `json:"console-url" mapstructure:"console-url"`
	MetricsInterval time.Duration `json:"metrics-interval" mapstructure:"metrics-interval"`
	DiskPath        string        `json:"disk-path" mapstructure:"disk-path"`
	GracePeriod     time.Duration `json:"grace-period" mapstructure:"grace-period"`
	WorkDir         string        `json:"work-dir" mapstructure:"work-dir"`
}

func NewRuntimeOptions() *RuntimeOptions {
	return &RuntimeOptions{
		MetricsInterval: agent.DefaultMetricsInterval,
		DiskPath:        "/",
		GracePeriod:     5 * time.Second,
	}
}

func (o *RuntimeOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ID, "agent.id", o.ID, "Agent id. Defaults to "+agent.AgentIDFile+" or an id derived from the hostname.")
	fs.StringVar(&o.IPAddress, "agent.ip-address", o.IPAddress, "Address reported to the console. Defaults to the outbound interface address.")
	fs.StringVar(&o.ConsoleURL, "agent.console-url", o.ConsoleURL, "Base URL of the console for registration. Falls back to $CONSOLE_URL; empty skips registration.")
	fs.DurationVar(&o.MetricsInterval, "agent.metrics-interval", o.MetricsInterval, "Interval between host metrics samples.")
	fs.StringVar(&o.DiskPath, "agent.disk-path", o.DiskPath, "Mount point whose usage is reported.")
	fs.DurationVar(&o.GracePeriod, "agent.grace-period", o.GracePeriod, "Time given to an aborted process group between SIGTERM and SIGKILL.")
	fs.StringVar(&o.WorkDir, "agent.work-dir", o.WorkDir, "Working directory of executed commands. Empty keeps the agent's own.")
}

func (o *RuntimeOptions) Validate() []error {
	errs := []error{}
	if o.MetricsInterval <= 0 {
		errs = append(errs, errors.New("--agent.metrics-interval must be positive"))
	}
	if o.GracePeriod < 0 {
		errs = append(errs, errors.New("--agent.grace-period must not be negative"))
	}
	if o.WorkDir != "" {
		if fi, err := os.Stat(o.WorkDir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Errorf("--agent.work-dir %q is not a directory", o.WorkDir))
		}
	}
	if o.IPAddress != "" && net.ParseIP(o.IPAddress) == nil {
		errs = append(errs, errors.New("--agent.ip-address is not an IP address"))
	}
	return errs
}

type AgentOptions struct {
	Agent            *RuntimeOptions           `json:"agent" mapstructure:"agent"`
	MessagingOptions *options.MessagingOptions `json:"messaging" mapstructure:"messaging"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	RedisOptions     *options.RedisOptions     `json:"redis" mapstructure:"redis"`
	ClockOptions     *options.ClockOptions     `json:"clock" mapstructure:"clock"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	o := &AgentOptions{
		Agent:            NewRuntimeOptions(),
		MessagingOptions: options.NewMessagingOptions(),
		MqttOptions:      options.NewMqttOptions(),
		RedisOptions:     options.NewRedisOptions(),
		ClockOptions:     options.NewClockOptions(),
		Log:              log.NewOptions(),
	}

	return o
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Agent.AddFlags(fss.FlagSet("agent"))
	o.MessagingOptions.AddFlags(fss.FlagSet("messaging"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.ClockOptions.AddFlags(fss.FlagSet("clock"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Complete honours the plain environment variables used by deployments that
// predate the SPEER_ prefix.
func (o *AgentOptions) Complete() error {
	if o.Agent.ConsoleURL == "" {
		o.Agent.ConsoleURL = os.Getenv("CONSOLE_URL")
	}
	if o.Agent.ID == "" {
		o.Agent.ID = os.Getenv("AGENT_ID")
	}
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Agent.Validate()...)
	errs = append(errs, o.MessagingOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.ClockOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *AgentOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		ID:               o.Agent.ID,
		IPAddress:        o.Agent.IPAddress,
		ConsoleURL:       o.Agent.ConsoleURL,
		MetricsInterval:  o.Agent.MetricsInterval,
		DiskPath:         o.Agent.DiskPath,
		GracePeriod:      o.Agent.GracePeriod,
		WorkDir:          o.Agent.WorkDir,
		MessagingOptions: o.MessagingOptions,
		MqttOptions:      o.MqttOptions,
		RedisOptions:     o.RedisOptions,
		ClockOptions:     o.ClockOptions,
	}, nil
}
