package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/config"
	"github.com/user/gosec-audit/pkg/sink"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect previously recorded audit runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		store, err := openHistory(cfg)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		defer store.Close()

		runs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN ID\tTIME\tPOLICY\tHOST\tPASS\tFAIL\tERROR\tUNKNOWN")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
				shortID(r.ID), r.GeneratedAt.Local().Format("2006-01-02 15:04:05"), r.PolicyName, r.Hostname,
				r.Summary.Pass, r.Summary.Fail, r.Summary.Error, r.Summary.Unknown)
		}
		return tw.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the report of a recorded run (id or unique prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		store, err := openHistory(cfg)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		defer store.Close()

		run, report, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return exitWith(ExitFatal, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run: %s\n", run.ID)
		return sink.NewConsole(out, cfg.Color).Render(report)
	},
}

// shortID abbreviates a run id for listings; any unique prefix works with
// "history show".
func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}
	return id[:n]
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 for all)")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}
