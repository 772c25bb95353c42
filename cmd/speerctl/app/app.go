package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/autopeer-io/syncpeer/cmd/speerctl/app/options"
	"github.com/autopeer-io/syncpeer/pkg/app"
)

const (
	commandName = "speerctl"
	commandDesc = `speerctl drives a syncpeer console over its HTTP API. It manages
test configurations, starts and aborts executions, and shows agents and
their recent metrics.`
)

func NewApp() *app.App {
	opts := options.NewCtlOptions()
	return app.NewApp(
		commandName,
		"Operate a syncpeer console",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithCommands(
			newTestsCmd(opts),
			newExecutionsCmd(opts),
			newAgentsCmd(opts),
			newMetricsCmd(opts),
		),
	)
}

// env bundles what every subcommand needs once options are loaded.
type env struct {
	ctx    context.Context
	client *client
	out    *printer
}

func newEnv(cmd *cobra.Command, opts *options.CtlOptions) *env {
	return &env{
		ctx:    cmd.Context(),
		client: newClient(opts.Server, opts.Timeout),
		out:    &printer{out: cmd.OutOrStdout(), format: opts.Output},
	}
}

// runE adapts a subcommand body to cobra.
func runE(opts *options.CtlOptions, fn func(e *env, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return fn(newEnv(cmd, opts), args)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func formatAge(now, t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return now.Sub(t).Round(time.Second).String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func joinOrAll(ids []string) string {
	if len(ids) == 0 {
		return "all"
	}
	return strings.Join(ids, ",")
}

func exactArgs(n int, names string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("expected %s", names)
		}
		return nil
	}
}
