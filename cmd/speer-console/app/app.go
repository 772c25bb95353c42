package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/syncpeer/cmd/speer-console/app/options"
	"github.com/autopeer-io/syncpeer/pkg/app"
)

const (
	commandName = "speer-console"
	commandDesc = `The syncpeer console stores test configurations, schedules their
executions on the agents at a common synchronized instant, tracks execution
results and keeps a short history of agent metrics. It serves the HTTP API used
by speerctl and by agents registering at startup.`
)

func NewApp() *app.App {
	opts := options.NewConsoleOptions()
	application := app.NewApp(
		commandName,
		"Launch the syncpeer console",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.ConsoleOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		console, err := cfg.NewConsole(ctx)
		if err != nil {
			return fmt.Errorf("failed to create console: %w", err)
		}

		return console.Run(ctx)
	}
}
