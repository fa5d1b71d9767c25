package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/outreach"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <task|daily>",
		Short: "Run one task, or the daily task list, immediately",
		Long: `Run one task kind immediately and exit. "daily" runs the configured
PIPELINE_TASKS in order, the same as a scheduled trigger.

Task kinds: ` + kindList(),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.ToLower(strings.TrimSpace(args[0]))
			var kind domain.TaskKind
			if target != "daily" {
				var err error
				if kind, err = domain.ParseTaskKind(target); err != nil {
					return err
				}
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a.checkAgent(ctx)

			if target == "daily" {
				return a.pipeline.RunDaily(ctx)
			}
			res, err := a.pipeline.RunTask(ctx, kind)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
}

func printResult(cmd *cobra.Command, res outreach.Result) {
	out := cmd.OutOrStdout()
	mode := "live"
	if res.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "%s (%s) finished in %s\n", res.Task.DisplayName(), mode, res.FinishedAt.Sub(res.StartedAt).Round(time.Second))
	for _, line := range res.Outcome.Acted {
		fmt.Fprintf(out, "  %s\n", line)
	}
	fmt.Fprintf(out, "acted: %d  skipped: %d  recorded: %d\n", len(res.Outcome.Acted), res.Outcome.Skipped, res.Recorded)
	if res.Detail != "" {
		fmt.Fprintln(out, res.Detail)
	}
}

func kindList() string {
	parts := make([]string, len(domain.TaskKinds))
	for i, k := range domain.TaskKinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
