package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/checks"
	"github.com/user/gosec-audit/pkg/config"
	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/history"
	"github.com/user/gosec-audit/pkg/log"
	"github.com/user/gosec-audit/pkg/policy"
	"github.com/user/gosec-audit/pkg/sink"
)

var runCmd = &cobra.Command{
	Use:   "run <policy>",
	Short: "Audit this host against a policy",
	Long: `Loads the policy, evaluates every control in order, prints the console
report and writes the JSON report.

Exit status is 0 when nothing failed, 1 when a control is FAIL or ERROR (or
UNKNOWN with --unknown-blocks) and 2 when the policy or configuration is unusable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig(cmd)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		noHistory, _ := cmd.Flags().GetBool("no-history")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		code := runAudit(ctx, auditOptions{
			PolicyPath: args[0],
			Config:     cfg,
			NoHistory:  noHistory,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		})
		return exitWith(code, nil)
	},
}

type auditOptions struct {
	PolicyPath string
	Config     *config.Config
	NoHistory  bool
	FS         afero.Fs
	Identity   engine.IdentityProvider
	Stdout     io.Writer
	Stderr     io.Writer
}

// runAudit performs one audit and returns the exit code. Everything the user
// needs to see has been written to opts.Stdout or opts.Stderr when it returns.
func runAudit(ctx context.Context, opts auditOptions) int {
	cfg := opts.Config

	p, err := policy.Load(opts.PolicyPath)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		return ExitFatal
	}
	log.Info("policy loaded", "policy", p.Name, "controls", len(p.Controls))

	reg, err := newRegistry(cfg, opts.FS)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
		return ExitFatal
	}

	var reportOpts []engine.ReportOption
	if opts.Identity != nil {
		reportOpts = append(reportOpts, engine.WithIdentity(opts.Identity))
	}
	report := engine.NewEvaluator(reg, cfg.Workers).Audit(ctx, p, reportOpts...)

	console := sink.NewConsole(opts.Stdout, cfg.Color)
	if err := console.Render(report); err != nil {
		log.Warn("console output failed", "error", err)
	}

	if err := sink.WriteJSON(cfg.OutputPath, report); err != nil {
		fmt.Fprintf(opts.Stderr, "Error: %v\n", err)
	} else {
		fmt.Fprintf(opts.Stdout, "Report saved to '%s'.\n", cfg.OutputPath)
	}

	if cfg.History.Enabled && !opts.NoHistory {
		recordHistory(ctx, cfg, report, console)
	}

	if n := report.Summary.Unknown; n > 0 && !cfg.UnknownBlocks {
		log.Warn("controls with unregistered check types were not evaluated", "count", n)
	}
	if report.Failed(cfg.UnknownBlocks) {
		return ExitFindings
	}
	return ExitOK
}

// recordHistory stores the report and prints drift against the previous run of the
// same policy. History problems never change the audit outcome.
func recordHistory(ctx context.Context, cfg *config.Config, report *engine.Report, console *sink.Console) {
	// The audit may have been interrupted; still record what was evaluated.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	store, err := openHistory(cfg)
	if err != nil {
		log.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	_, prev, err := store.Latest(ctx, report.PolicyName)
	switch {
	case err == nil:
		if err := console.RenderDrift(engine.CompareReports(prev, report)); err != nil {
			log.Warn("console output failed", "error", err)
		}
	case errors.Is(err, history.ErrNotFound):
	default:
		log.Warn("could not load previous run", "error", err)
	}

	id, err := store.Save(ctx, report)
	if err != nil {
		log.Warn("could not record run", "error", err)
		return
	}
	log.Debug("run recorded", "run_id", id, "db", store.Path())
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	var opts []history.Option
	if p := cfg.HistoryPath(); p != "" {
		opts = append(opts, history.WithDatabaseFile(p))
	}
	return history.Open(opts...)
}

func newRegistry(cfg *config.Config, fs afero.Fs) (*engine.Registry, error) {
	reg := engine.NewRegistry(engine.WithTimeout(cfg.CheckTimeout))
	if err := checks.RegisterBuiltins(reg, fs); err != nil {
		return nil, err
	}
	return reg, nil
}

// effectiveConfig merges the config file, environment and command-line flags.
func effectiveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputPath, _ = flags.GetString("output")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		cfg.CheckTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("unknown-blocks") {
		cfg.UnknownBlocks, _ = flags.GetBool("unknown-blocks")
	}
	if noColor, _ := flags.GetBool("no-color"); noColor {
		cfg.Color = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func addAuditFlags(c *cobra.Command) {
	c.Flags().StringP("output", "o", "", "JSON report path (default from config, audit_report.json)")
	c.Flags().Int("workers", 1, "Number of controls evaluated concurrently")
	c.Flags().Duration("timeout", config.DefaultCheckTimeout, "Per-check timeout")
	c.Flags().Bool("no-color", false, "Disable coloured output")
	c.Flags().Bool("unknown-blocks", false, "Treat UNKNOWN results as failures")
}

func init() {
	addAuditFlags(runCmd)
	runCmd.Flags().Bool("no-history", false, "Do not record this run in the history database")
	rootCmd.AddCommand(runCmd)
}
