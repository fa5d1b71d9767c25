package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ashureev/outreach-agent/internal/config"
	"github.com/ashureev/outreach-agent/internal/domain"
	"github.com/ashureev/outreach-agent/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		kind   string
		days   int
		limit  int
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent history ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := store.HistoryQuery{Days: days, Limit: limit, IncludeDryRun: dryRun}
			if kind != "" {
				k, err := domain.ParseTaskKind(kind)
				if err != nil {
					return err
				}
				q.Kind = k
			}

			// Only the ledger is needed; skip wiring the agent and sinks.
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			repo, err := store.NewSQLite(cfg.DBPath, store.WithLocation(cfg.Location))
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close() }()

			records, err := repo.List(cmd.Context(), q)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tTASK\tCONTACT\tDRY RUN\tMESSAGE")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", r.Date, r.TaskKind, r.ContactName, r.IsDryRun, r.Message)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only this task kind")
	cmd.Flags().IntVar(&days, "days", 0, "Only the last N calendar days")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of records")
	cmd.Flags().BoolVar(&dryRun, "include-dry-run", false, "Include dry-run records")
	return cmd
}
