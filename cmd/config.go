package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/gosec-audit/pkg/advisor"
	"github.com/user/gosec-audit/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration (audit defaults, AI provider, keys)",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (API keys masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		if err := cfg.ApplyEnv(nil); err != nil {
			return exitWith(ExitFatal, err)
		}

		masked := *cfg
		masked.Advisor.Providers = make(map[string]config.ProviderConfig, len(cfg.Advisor.Providers))
		for name, p := range cfg.Advisor.Providers {
			masked.Advisor.Providers[name] = config.ProviderConfig{APIKey: maskKey(p.APIKey)}
		}

		data, err := yaml.Marshal(&masked)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", cfg.Path())
		_, err = out.Write(data)
		return err
	},
}

var setKeyCmd = &cobra.Command{
	Use:   "set-key",
	Short: "Manually set API key for a provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		key, _ := cmd.Flags().GetString("key")

		if provider == "" || key == "" {
			return exitWith(ExitFatal, fmt.Errorf("--provider and --key are required"))
		}

		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, fmt.Errorf("loading config: %w", err))
		}

		cfg.SetAPIKey(strings.ToLower(provider), key)
		if err := config.SaveConfig(cfg); err != nil {
			return exitWith(ExitFatal, fmt.Errorf("saving config: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "API key saved for provider: %s\n", provider)
		return nil
	},
}

var setModelCmd = &cobra.Command{
	Use:   "set-model",
	Short: "Manually set the active provider and model",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		model, _ := cmd.Flags().GetString("model")

		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, fmt.Errorf("loading config: %w", err))
		}

		if provider != "" {
			cfg.Advisor.Provider = strings.ToLower(provider)
		}
		if model != "" {
			cfg.Advisor.Model = model
		}

		if err := config.SaveConfig(cfg); err != nil {
			return exitWith(ExitFatal, fmt.Errorf("saving config: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Active configuration updated: Provider=%s, Model=%s\n", cfg.Advisor.Provider, cfg.Advisor.Model)
		return nil
	},
}

var listModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List available models from the configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(ConfigPath)
		if err != nil {
			return exitWith(ExitFatal, err)
		}

		provider := cfg.Advisor.Provider
		if provider == "" {
			return exitWith(ExitFatal, fmt.Errorf("no provider selected; run 'gosec-audit config setup'"))
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Fetching models for %s...\n", provider)
		ctx := cmd.Context()
		p, err := advisor.NewProvider(ctx, provider, cfg.GetAPIKey(provider), "")
		if err != nil {
			return exitWith(ExitFatal, fmt.Errorf("initializing provider: %w", err))
		}
		if closer, ok := p.(interface{ Close() }); ok {
			defer closer.Close()
		}

		models, err := p.ListModels(ctx)
		if err != nil {
			return exitWith(ExitFatal, fmt.Errorf("fetching models: %w", err))
		}

		fmt.Fprintf(out, "\nAvailable Models (%s):\n", provider)
		for _, m := range models {
			mark := " "
			if m == cfg.Advisor.Model {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %s\n", mark, m)
		}
		return nil
	},
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

func init() {
	providers := strings.Join(advisor.Providers, ", ")
	setKeyCmd.Flags().StringP("provider", "p", "", "Provider ("+providers+")")
	setKeyCmd.Flags().StringP("key", "k", "", "API Key")

	setModelCmd.Flags().StringP("provider", "p", "", "Provider ("+providers+")")
	setModelCmd.Flags().StringP("model", "m", "", "Model name")

	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(setKeyCmd)
	configCmd.AddCommand(setModelCmd)
	configCmd.AddCommand(listModelsCmd)
	rootCmd.AddCommand(configCmd)
}
