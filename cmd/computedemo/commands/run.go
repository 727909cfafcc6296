package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/cmd/computedemo/scenarios"
)

// ErrScenariosFailed is returned when at least one scenario fails.
var ErrScenariosFailed = errors.New("scenarios failed")

func newRunCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run compute scenarios and verify their results",
		Long: fmt.Sprintf(`Run opens a compute context on the configured backend and runs each
scenario in order. Available scenarios: %v.`, scenarios.Names()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd)
		},
	}
	flags := cmd.Flags()
	flags.StringSlice("scenario", nil, "scenarios to run (default all)")
	flags.Int("elements", 0, "elements per scenario")
	flags.Duration("timeout", 0, "overall timeout")
	flags.Int("memory-budget", 0, "device memory budget in MiB (0 is unlimited)")

	_ = c.v.BindPFlag("run.scenarios", flags.Lookup("scenario"))
	_ = c.v.BindPFlag("run.elements", flags.Lookup("elements"))
	_ = c.v.BindPFlag("run.timeout", flags.Lookup("timeout"))
	_ = c.v.BindPFlag("backend.memory_budget_mb", flags.Lookup("memory-budget"))
	return cmd
}

func (c *cli) run(cmd *cobra.Command) error {
	cfg, log, err := c.load(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer compute.SetLogger(nil)

	opts := []compute.ContextOption{
		compute.WithMemoryBudget(cfg.MemoryBudget()),
		compute.WithPollInterval(cfg.Backend.PollInterval),
		compute.WithLabelPrefix(cfg.Backend.LabelPrefix),
	}
	if cfg.Backend.Name != "" {
		opts = append(opts, compute.WithBackend(cfg.Backend.Name))
	}
	cc, err := compute.NewContext(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = cc.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Run.Timeout)
	defer cancel()

	results, err := scenarios.Run(ctx, cc, cfg.Run.Scenarios, cfg.Run.Elements, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend: %s\n", cc.Backend())
	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "FAIL: " + r.Err.Error()
			failed++
		}
		fmt.Fprintf(out, "%-10s %6d elements %12s  %s\n", r.Name, r.Elements, r.Elapsed, status)
	}
	stats := cc.Stats()
	fmt.Fprintf(out, "submissions: %d\n", stats.Submissions)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrScenariosFailed, failed, len(results))
	}
	return nil
}
