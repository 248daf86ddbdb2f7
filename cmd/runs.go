package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/powerprep/internal/audit"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing runs and viewing their recorded skips and conflicts.",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := openAudit(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the recorded skips and conflicts of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openAudit(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		events, err := store.ListEvents(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if len(events) == 0 {
			fmt.Fprintln(os.Stderr, "No events recorded for this run.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tSOURCE\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.Kind, e.Source, e.Detail)
		}
		return w.Flush()
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// openAudit opens the configured audit store and applies migrations.
func openAudit(ctx context.Context) (*audit.Store, error) {
	if err := cfg.Validate("audit"); err != nil {
		return nil, err
	}
	store, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// beginAuditRun opens the audit store and inserts a running record.
func beginAuditRun(ctx context.Context, command string) (*audit.Store, *audit.Run, error) {
	store, err := openAudit(ctx)
	if err != nil {
		return nil, nil, err
	}
	run, err := store.BeginRun(ctx, command)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, run, nil
}

func formatRunsList(out io.Writer, runs []audit.Run) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMMAND\tSTATUS\tSTARTED\tSUMMARY")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Command, r.Status, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Summary)
	}
	_ = w.Flush()
}
