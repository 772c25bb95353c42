package app

import (
	"github.com/spf13/cobra"
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by the option structs of every binary.
// Flags are grouped into named sets so that --help prints them by section.
type NamedFlagSetOptions interface {
	// Flags returns the flag sets, grouped by section name.
	Flags() cliflag.NamedFlagSets
	// Complete fills in fields derived from other fields once flags and config are loaded.
	Complete() error
	// Validate checks the final option values.
	Validate() error
}

// RunFunc is the entry point invoked once options are loaded and validated.
type RunFunc func() error

// Option customizes an App.
type Option func(*App)

// WithOptions sets the options that are bound to flags, env and the config file.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the function executed by the root command.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithDescription sets the long description shown by --help.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithDefaultValidArgs rejects positional arguments on the root command.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return cobra.NoArgs(cmd, args)
				}
			}
			return nil
		}
	}
}

// WithCommands attaches subcommands. They see the same loaded options as the root.
func WithCommands(cmds ...*cobra.Command) Option {
	return func(a *App) {
		a.commands = append(a.commands, cmds...)
	}
}

// WithNoConfig disables the --config flag.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// WithEnvPrefix overrides the environment variable prefix (default SPEER).
func WithEnvPrefix(prefix string) Option {
	return func(a *App) {
		a.envPrefix = prefix
	}
}
