package app

import (
	"fmt"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/syncpeer/cmd/speerctl/app/options"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

func newAgentsCmd(opts *options.CtlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"agent"},
		Short:   "Show agents known to the console",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List agents",
			Args:  cobra.NoArgs,
			RunE: runE(opts, func(e *env, _ []string) error {
				var agents []*model.Agent
				if err := e.client.get(e.ctx, "/agents", nil, &agents); err != nil {
					return err
				}
				return printAgents(e, agents)
			}),
		},
		&cobra.Command{
			Use:   "get ID",
			Short: "Show one agent",
			Args:  exactArgs(1, "an agent id"),
			RunE: runE(opts, func(e *env, args []string) error {
				var agent model.Agent
				if err := e.client.get(e.ctx, "/agents/"+args[0], nil, &agent); err != nil {
					return err
				}
				return printAgents(e, []*model.Agent{&agent})
			}),
		},
	)
	return cmd
}

func printAgents(e *env, agents []*model.Agent) error {
	now := time.Now()
	return e.out.print(agents, []any{"ID", "HOSTNAME", "IP", "STATUS", "CPU", "MEM", "LAST SEEN"}, func(t *uitable.Table) {
		for _, a := range agents {
			cpu, mem := "-", "-"
			if a.LastMetrics != nil {
				cpu = fmt.Sprintf("%.1f%%", a.LastMetrics.CPUPercent)
				mem = fmt.Sprintf("%.1f%%", a.LastMetrics.MemoryPercent)
			}
			t.AddRow(a.ID, orDash(a.Hostname), a.IPAddress, a.Status, cpu, mem, formatAge(now, a.LastSeen))
		}
	})
}
