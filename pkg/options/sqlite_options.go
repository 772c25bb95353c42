package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SQLiteOptions)(nil)

// SQLiteOptions configures the console record store.
type SQLiteOptions struct {
	Path string `json:"path" mapstructure:"path"`
	// BusyTimeoutMS is passed to the driver as _busy_timeout.
	BusyTimeoutMS int `json:"busy-timeout-ms" mapstructure:"busy-timeout-ms"`
}

func NewSQLiteOptions() *SQLiteOptions {
	return &SQLiteOptions{
		Path:          "syncpeer.db",
		BusyTimeoutMS: 5000,
	}
}

func (o *SQLiteOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Path == "" {
		return []error{errors.New("--sqlite.path must not be empty")}
	}
	return nil
}

func (o *SQLiteOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, join(prefixes, "sqlite.path"), o.Path, "Path of the SQLite database file.")
	fs.IntVar(&o.BusyTimeoutMS, join(prefixes, "sqlite.busy-timeout-ms"), o.BusyTimeoutMS, "Milliseconds to wait on a locked database.")
}
