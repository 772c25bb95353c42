package options

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/syncpeer/pkg/app"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

type CtlOptions struct {
	Server  string        `json:"server" mapstructure:"server"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	Output  string        `json:"output" mapstructure:"output"`
	Log     *log.Options  `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*CtlOptions)(nil)

func NewCtlOptions() *CtlOptions {
	return &CtlOptions{
		Server:  "http://127.0.0.1:8000",
		Timeout: 30 * time.Second,
		Output:  OutputTable,
		Log:     log.NewOptions(),
	}
}

func (o *CtlOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("client")
	fs.StringVarP(&o.Server, "server", "s", o.Server, "Base URL of the syncpeer console.")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Timeout of a single API request.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format: table, json or yaml.")
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *CtlOptions) Complete() error {
	return nil
}

func (o *CtlOptions) Validate() error {
	errs := []error{}
	if u, err := url.Parse(o.Server); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("--server %q is not an absolute URL", o.Server))
	}
	if o.Timeout <= 0 {
		errs = append(errs, errors.New("--timeout must be positive"))
	}
	switch o.Output {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		errs = append(errs, fmt.Errorf("--output must be one of table, json, yaml"))
	}
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}
