package cmd

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/advisor"
	"github.com/user/gosec-audit/pkg/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		prompt := func(label string) string {
			fmt.Fprint(out, label)
			scanner.Scan()
			return strings.TrimSpace(scanner.Text())
		}

		fmt.Fprintln(out, "Welcome to the gosec-audit Setup Wizard")
		fmt.Fprintln(out, "---------------------------------------")

		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, fmt.Errorf("loading config: %w", err))
		}

		// 1. Audit defaults
		fmt.Fprintln(out, "Step 1: Audit defaults (press Enter to keep the current value)")
		if v := prompt(fmt.Sprintf("Report path [%s] > ", cfg.OutputPath)); v != "" {
			cfg.OutputPath = v
		}
		if v := prompt(fmt.Sprintf("Concurrent checks [%d] > ", cfg.Workers)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return exitWith(ExitFatal, fmt.Errorf("invalid number of workers: %q", v))
			}
			cfg.Workers = n
		}

		// 2. AI provider
		fmt.Fprintln(out, "\nStep 2: Choose the AI provider used by 'explain'")
		for i, p := range advisor.Providers {
			fmt.Fprintf(out, "%d. %s\n", i+1, p)
		}
		choice := strings.ToLower(prompt("Enter number or name (empty to skip) > "))
		provider := ""
		for i, p := range advisor.Providers {
			if choice == p || choice == strconv.Itoa(i+1) {
				provider = p
			}
		}
		if choice != "" && provider == "" {
			return exitWith(ExitFatal, fmt.Errorf("invalid choice %q", choice))
		}

		if provider != "" {
			apiKey := prompt(fmt.Sprintf("\nStep 3: Enter API Key for %s\n> ", provider))
			if apiKey == "" {
				return exitWith(ExitFatal, fmt.Errorf("API key cannot be empty"))
			}

			fmt.Fprintln(out, "\nStep 4: Validating key and fetching available models...")
			selectedModel := cfg.Advisor.Model
			ctx := cmd.Context()
			p, err := advisor.NewProvider(ctx, provider, apiKey, "")
			if err != nil {
				return exitWith(ExitFatal, fmt.Errorf("initializing provider: %w", err))
			}
			models, err := p.ListModels(ctx)
			if closer, ok := p.(interface{ Close() }); ok {
				closer.Close()
			}
			if err != nil || len(models) == 0 {
				fmt.Fprintf(out, "Warning: Could not fetch models from API: %v\n", err)
				if v := prompt(fmt.Sprintf("Model name [%s] > ", selectedModel)); v != "" {
					selectedModel = v
				}
			} else {
				fmt.Fprintf(out, "Successfully retrieved %d models.\n", len(models))
				for i, m := range models {
					fmt.Fprintf(out, "%d. %s\n", i+1, m)
				}
				idx, err := strconv.Atoi(prompt("Select Model (number) > "))
				if err != nil || idx < 1 || idx > len(models) {
					fmt.Fprintln(out, "Invalid selection. Using first available model.")
					idx = 1
				}
				selectedModel = models[idx-1]
			}

			cfg.Advisor.Provider = provider
			cfg.Advisor.Model = selectedModel
			cfg.SetAPIKey(provider, apiKey)
		}

		if err := cfg.Validate(); err != nil {
			return exitWith(ExitFatal, err)
		}
		fmt.Fprintln(out, "\nSaving Configuration...")
		if err := config.SaveConfig(cfg); err != nil {
			return exitWith(ExitFatal, fmt.Errorf("saving config: %w", err))
		}

		fmt.Fprintln(out, "---------------------------------------")
		fmt.Fprintln(out, "Setup Complete!")
		fmt.Fprintf(out, "Config:   %s\n", cfg.Path())
		fmt.Fprintf(out, "Report:   %s\n", cfg.OutputPath)
		fmt.Fprintf(out, "Provider: %s\n", cfg.Advisor.Provider)
		fmt.Fprintf(out, "Model:    %s\n", cfg.Advisor.Model)
		fmt.Fprintln(out, "You can now run 'gosec-audit run <policy>'")
		return nil
	},
}

func init() {
	configCmd.AddCommand(setupCmd)
}
