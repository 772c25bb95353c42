// Package app is the command-line scaffold shared by the syncpeer binaries.
// It turns a NamedFlagSetOptions into a cobra command whose values can come
// from flags, SPEER_ environment variables or a YAML config file, in that
// order of precedence.
package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/syncpeer/pkg/log"
)

const (
	defaultEnvPrefix = "SPEER"
	configFlagName   = "config"
)

// App is a cobra application with viper-backed options.
type App struct {
	name        string
	shortDesc   string
	description string
	envPrefix   string
	noConfig    bool

	options  NamedFlagSetOptions
	runFunc  RunFunc
	args     cobra.PositionalArgs
	commands []*cobra.Command

	v          *viper.Viper
	configFile string
	cmd        *cobra.Command
}

// NewApp builds an application named name.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		envPrefix: defaultEnvPrefix,
		v:         viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command exposes the root cobra command, mostly for tests.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Viper returns the configuration source backing the options.
func (a *App) Viper() *viper.Viper {
	return a.v
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	err := a.cmd.Execute()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:               a.name,
		Short:             a.shortDesc,
		Long:              a.description,
		SilenceUsage:      true,
		SilenceErrors:     false,
		Args:              a.args,
		PersistentPreRunE: func(*cobra.Command, []string) error { return a.loadOptions() },
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	cmd.AddCommand(a.commands...)

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	if !a.noConfig {
		fss.FlagSet("global").StringVarP(&a.configFile, configFlagName, "c", "", "Read configuration from the specified YAML file.")
	}
	for _, f := range fss.FlagSets {
		cmd.PersistentFlags().AddFlagSet(f)
	}

	if a.runFunc != nil {
		cmd.RunE = func(*cobra.Command, []string) error { return a.runFunc() }
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

// loadOptions merges config file and environment into the options, then
// completes and validates them and initialises logging.
func (a *App) loadOptions() error {
	if err := a.v.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return err
	}

	a.v.SetEnvPrefix(a.envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", a.configFile, err)
		}
	}

	if a.options != nil {
		if err := a.v.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode options: %w", err)
		}
		if err := a.options.Complete(); err != nil {
			return fmt.Errorf("failed to complete options: %w", err)
		}
		if err := a.options.Validate(); err != nil {
			return err
		}
	}

	logOpts := a.logOptions()
	log.Init(logOpts)
	if err := log.SetLevel(logOpts.Level); err != nil {
		return fmt.Errorf("invalid --log.level: %w", err)
	}

	if a.configFile != "" {
		a.watchConfig()
	}
	log.Debug("Options loaded", "app", a.name, "config", a.configFile)
	return nil
}

// logOptions reads every log key on its own. UnmarshalKey("log") would only
// see the nested config map and miss the dotted --log.* flags.
func (a *App) logOptions() *log.Options {
	o := log.NewOptions()
	if a.v.IsSet("log.name") {
		o.Name = a.v.GetString("log.name")
	}
	if a.v.IsSet("log.level") {
		o.Level = a.v.GetString("log.level")
	}
	if a.v.IsSet("log.format") {
		o.Format = a.v.GetString("log.format")
	}
	if a.v.IsSet("log.enable-color") {
		o.EnableColor = a.v.GetBool("log.enable-color")
	}
	if a.v.IsSet("log.disable-caller") {
		o.DisableCaller = a.v.GetBool("log.disable-caller")
	}
	if a.v.IsSet("log.caller-skip") {
		o.CallerSkip = a.v.GetInt("log.caller-skip")
	}
	if a.v.IsSet("log.output-paths") {
		o.OutputPaths = a.v.GetStringSlice("log.output-paths")
	}
	return o
}

// watchConfig reloads the log level whenever the config file changes. Other
// settings take effect on restart.
func (a *App) watchConfig() {
	a.v.OnConfigChange(func(e fsnotify.Event) {
		level := a.v.GetString("log.level")
		if level == "" || level == log.Level() {
			return
		}
		if err := log.SetLevel(level); err != nil {
			log.Error(err, "Ignoring invalid log level from config", "file", e.Name, "level", level)
			return
		}
		log.Info("Log level changed", "file", e.Name, "level", level)
	})
	a.v.WatchConfig()
}
