package app

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/syncpeer/cmd/speerctl/app/options"
	"github.com/autopeer-io/syncpeer/internal/console/monitoring"
	consolehttp "github.com/autopeer-io/syncpeer/internal/console/server/http"
)

var sampleHeader = []any{"AGENT", "TIME", "CPU", "MEM", "DISK", "SENT", "RECV"}

func newMetricsCmd(opts *options.CtlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show agent metrics collected by the console",
	}

	var lookback int
	agent := &cobra.Command{
		Use:   "agent ID",
		Short: "Show recent samples of one agent",
		Args:  exactArgs(1, "an agent id"),
		RunE: runE(opts, func(e *env, args []string) error {
			q := url.Values{}
			if lookback > 0 {
				q.Set("lookback_minutes", strconv.Itoa(lookback))
			}
			var resp consolehttp.AgentMetricsResponse
			if err := e.client.get(e.ctx, "/metrics/agents/"+args[0], q, &resp); err != nil {
				return err
			}
			return e.out.print(resp, sampleHeader, func(t *uitable.Table) {
				addSamples(t, resp.Samples)
			})
		}),
	}
	agent.Flags().IntVar(&lookback, "lookback", 0, "Minutes of history to show, the console default when zero.")

	cmd.AddCommand(
		agent,
		&cobra.Command{
			Use:   "live",
			Short: "Show the latest sample of every live agent",
			Args:  cobra.NoArgs,
			RunE: runE(opts, func(e *env, _ []string) error {
				live := map[string]monitoring.Sample{}
				if err := e.client.get(e.ctx, "/metrics/live", nil, &live); err != nil {
					return err
				}
				return e.out.print(live, sampleHeader, func(t *uitable.Table) {
					for _, id := range sortedKeys(live) {
						addSamples(t, []monitoring.Sample{live[id]})
					}
				})
			}),
		},
		&cobra.Command{
			Use:   "execution ID",
			Short: "Show the samples taken while an execution ran",
			Args:  exactArgs(1, "an execution id"),
			RunE: runE(opts, func(e *env, args []string) error {
				var resp consolehttp.ExecutionMetricsResponse
				if err := e.client.get(e.ctx, "/metrics/executions/"+args[0], nil, &resp); err != nil {
					return err
				}
				return e.out.print(resp, sampleHeader, func(t *uitable.Table) {
					for _, id := range sortedKeys(resp.Agents) {
						addSamples(t, resp.Agents[id])
					}
				})
			}),
		},
	)
	return cmd
}

func addSamples(t *uitable.Table, samples []monitoring.Sample) {
	for _, s := range samples {
		m := s.Metrics
		t.AddRow(s.AgentID, formatTime(s.Timestamp),
			fmt.Sprintf("%.1f%%", m.CPUPercent),
			fmt.Sprintf("%.1f%%", m.MemoryPercent),
			fmt.Sprintf("%.1f%%", m.DiskPercent),
			m.Network.BytesSent, m.Network.BytesRecv)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
