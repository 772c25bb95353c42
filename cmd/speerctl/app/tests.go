package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/syncpeer/cmd/speerctl/app/options"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
)

// testFile is the on-disk form of a test configuration.
type testFile struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Command      string         `yaml:"command"`
	Parameters   map[string]any `yaml:"parameters"`
	TargetAgents []string       `yaml:"target_agents"`
	Duration     *int           `yaml:"duration"`
	CreatedBy    string         `yaml:"created_by"`
}

// readTestFiles decodes every YAML document in r.
func readTestFiles(r io.Reader) ([]*model.TestConfiguration, error) {
	dec := yaml.NewDecoder(r)
	var cfgs []*model.TestConfiguration
	for {
		var f testFile
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid test file: %w", err)
		}
		if f.Name == "" && f.Command == "" {
			continue
		}
		cfgs = append(cfgs, &model.TestConfiguration{
			Name:         f.Name,
			Description:  f.Description,
			Command:      f.Command,
			Parameters:   f.Parameters,
			TargetAgents: f.TargetAgents,
			Duration:     f.Duration,
			CreatedBy:    f.CreatedBy,
		})
	}
	if len(cfgs) == 0 {
		return nil, errors.New("test file holds no configuration")
	}
	return cfgs, nil
}

func newTestsCmd(opts *options.CtlOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tests",
		Aliases: []string{"test"},
		Short:   "Manage test configurations",
	}

	var file string
	create := &cobra.Command{
		Use:   "create -f FILE",
		Short: "Create test configurations from a YAML file",
		Args:  cobra.NoArgs,
		RunE: runE(opts, func(e *env, _ []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			cfgs, err := readTestFiles(bytes.NewReader(data))
			if err != nil {
				return err
			}
			created := make([]*model.TestConfiguration, 0, len(cfgs))
			for _, cfg := range cfgs {
				var out model.TestConfiguration
				if err := e.client.post(e.ctx, "/tests", cfg, &out); err != nil {
					return err
				}
				created = append(created, &out)
			}
			return printTests(e, created)
		}),
	}
	create.Flags().StringVarP(&file, "filename", "f", "", "YAML file with one or more test configurations, - for stdin.")
	_ = create.MarkFlagRequired("filename")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List test configurations",
			Args:  cobra.NoArgs,
			RunE: runE(opts, func(e *env, _ []string) error {
				var cfgs []*model.TestConfiguration
				if err := e.client.get(e.ctx, "/tests", nil, &cfgs); err != nil {
					return err
				}
				return printTests(e, cfgs)
			}),
		},
		&cobra.Command{
			Use:   "get ID",
			Short: "Show a test configuration",
			Args:  exactArgs(1, "a test id"),
			RunE: runE(opts, func(e *env, args []string) error {
				var cfg model.TestConfiguration
				if err := e.client.get(e.ctx, "/tests/"+args[0], nil, &cfg); err != nil {
					return err
				}
				return printTests(e, []*model.TestConfiguration{&cfg})
			}),
		},
		create,
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a test configuration",
			Args:  exactArgs(1, "a test id"),
			RunE: runE(opts, func(e *env, args []string) error {
				if err := e.client.delete(e.ctx, "/tests/"+args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(e.out.out, "test %s deleted\n", args[0])
				return err
			}),
		},
		&cobra.Command{
			Use:   "run ID",
			Short: "Execute a test configuration on its agents",
			Args:  exactArgs(1, "a test id"),
			RunE: runE(opts, func(e *env, args []string) error {
				var exec model.TestExecution
				if err := e.client.post(e.ctx, "/tests/"+args[0]+"/execute", nil, &exec); err != nil {
					return err
				}
				return printExecutions(e, []*model.TestExecution{&exec})
			}),
		},
	)
	return cmd
}

func readInput(file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func printTests(e *env, cfgs []*model.TestConfiguration) error {
	return e.out.print(cfgs, []any{"ID", "NAME", "COMMAND", "TARGETS", "CREATED"}, func(t *uitable.Table) {
		for _, c := range cfgs {
			t.AddRow(c.ID, c.Name, c.Command, joinOrAll(c.TargetAgents), formatTime(c.CreatedAt))
		}
	})
}
