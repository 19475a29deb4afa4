package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/advisor"
	"github.com/user/gosec-audit/pkg/config"
	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/log"
	"github.com/user/gosec-audit/pkg/sink"
)

var explainCmd = &cobra.Command{
	Use:   "explain [report.json]",
	Short: "Ask the configured AI provider to explain failing controls",
	Long: `Sends the FAIL and ERROR results of a report to the configured provider and
prints a prioritised remediation plan. The report is read from the given JSON file,
from a recorded run (--run) or from the configured output path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		runID, _ := cmd.Flags().GetString("run")

		report, err := loadReport(cmd, cfg, args, runID)
		if err != nil {
			return exitWith(ExitFatal, err)
		}

		providerName := cfg.Advisor.Provider
		if providerName == "" {
			providerName = config.DefaultProvider
		}
		apiKey := cfg.GetAPIKey(providerName)
		if apiKey == "" {
			return exitWith(ExitFatal, fmt.Errorf("API key not found for %s; run 'gosec-audit config setup' or set %s", providerName, config.EnvGoogleAPIKey))
		}

		ctx := cmd.Context()
		log.Info("connecting to advisor", "provider", providerName, "model", cfg.Advisor.Model)
		provider, err := advisor.NewProvider(ctx, providerName, apiKey, cfg.Advisor.Model)
		if err != nil {
			return exitWith(ExitFatal, fmt.Errorf("creating AI provider: %w", err))
		}
		if closer, ok := provider.(interface{ Close() }); ok {
			defer closer.Close()
		}

		text, err := advisor.New(provider).Explain(ctx, report)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func loadReport(cmd *cobra.Command, cfg *config.Config, args []string, runID string) (*engine.Report, error) {
	if runID != "" {
		store, err := openHistory(cfg)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		_, report, err := store.Get(cmd.Context(), runID)
		return report, err
	}

	path := cfg.OutputPath
	if len(args) == 1 {
		path = args[0]
	}
	return sink.ReadJSON(path)
}

func init() {
	explainCmd.Flags().String("run", "", "Explain a recorded run instead of a report file")
	rootCmd.AddCommand(explainCmd)
}
