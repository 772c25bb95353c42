package app

import (
	"fmt"
	"net/url"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/autopeer-io/syncpeer/cmd/speerctl/app/options"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	consolehttp "github.com/autopeer-io/syncpeer/internal/console/server/http"
)

func newExecutionsCmd(opts *options.CtlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "executions",
		Aliases: []string{"execution", "exec"},
		Short:   "Inspect and abort test executions",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List executions, newest first",
		Args:  cobra.NoArgs,
		RunE: runE(opts, func(e *env, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			var execs []*model.TestExecution
			if err := e.client.get(e.ctx, "/executions", q, &execs); err != nil {
				return err
			}
			return printExecutions(e, execs)
		}),
	}
	list.Flags().StringVar(&status, "status", "", "Only show executions in this status.")

	cmd.AddCommand(
		list,
		&cobra.Command{
			Use:   "get ID",
			Short: "Show an execution and its per-agent results",
			Args:  exactArgs(1, "an execution id"),
			RunE: runE(opts, func(e *env, args []string) error {
				var exec model.TestExecution
				if err := e.client.get(e.ctx, "/executions/"+args[0], nil, &exec); err != nil {
					return err
				}
				return printExecution(e, &exec)
			}),
		},
		&cobra.Command{
			Use:   "abort ID",
			Short: "Abort a preparing or running execution",
			Args:  exactArgs(1, "an execution id"),
			RunE: runE(opts, func(e *env, args []string) error {
				var resp consolehttp.AbortResponse
				if err := e.client.post(e.ctx, "/executions/"+args[0]+"/abort", nil, &resp); err != nil {
					return err
				}
				return e.out.print(resp, []any{"EXECUTION", "STATUS"}, func(t *uitable.Table) {
					t.AddRow(resp.ExecutionID, resp.Status)
				})
			}),
		},
		&cobra.Command{
			Use:   "url ID AGENT",
			Short: "Print a download link for an archived agent result",
			Args:  exactArgs(2, "an execution id and an agent id"),
			RunE: runE(opts, func(e *env, args []string) error {
				var resp consolehttp.ResultURLResponse
				path := fmt.Sprintf("/executions/%s/results/%s/url", args[0], args[1])
				if err := e.client.get(e.ctx, path, nil, &resp); err != nil {
					return err
				}
				return e.out.print(resp, []any{"URL", "EXPIRES"}, func(t *uitable.Table) {
					t.AddRow(resp.URL, formatTime(resp.ExpiresAt))
				})
			}),
		},
	)
	return cmd
}

func printExecutions(e *env, execs []*model.TestExecution) error {
	return e.out.print(execs, []any{"ID", "CONFIG", "STATUS", "TARGETS", "SCHEDULED", "RESULTS"}, func(t *uitable.Table) {
		for _, x := range execs {
			targets := joinOrAll(x.Targets)
			if x.Broadcast {
				targets = "broadcast"
			}
			t.AddRow(x.ID, x.ConfigID, x.Status, targets, formatTime(x.ScheduledAt), summary(x))
		}
	})
}

func printExecution(e *env, x *model.TestExecution) error {
	return e.out.print(x, []any{"AGENT", "STATUS", "EXIT", "SECONDS", "MESSAGE"}, func(t *uitable.Table) {
		for _, id := range x.Expected() {
			r, ok := x.Results[id]
			if !ok {
				t.AddRow(id, "pending", "-", "-", "-")
				continue
			}
			t.AddRow(id, r.Status, r.ExitCode, fmt.Sprintf("%.2f", r.ExecutionTime), orDash(r.Message))
		}
		if x.Message != "" {
			t.AddRow("", x.Status, "", "", x.Message)
		}
	})
}

func summary(x *model.TestExecution) string {
	if x.Summary == nil {
		return fmt.Sprintf("0/%d", len(x.Expected()))
	}
	return fmt.Sprintf("%d ok, %d failed", x.Summary.Succeeded, x.Summary.Failed)
}
