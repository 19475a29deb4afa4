package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/log"
)

const watchDebounce = 300 * time.Millisecond

var watchCmd = &cobra.Command{
	Use:   "watch <policy>",
	Short: "Re-run the audit whenever the policy file changes",
	Long: `Runs the audit once, then again every time the policy file is saved.
Runs started by watch are not recorded in the history database. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := effectiveConfig(cmd)
		if err != nil {
			return exitWith(ExitFatal, err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := auditOptions{
			PolicyPath: args[0],
			Config:     cfg,
			NoHistory:  true,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		}
		return watchPolicy(ctx, opts, func() {
			code := runAudit(ctx, opts)
			fmt.Fprintf(opts.Stdout, "Audit finished with exit status %d. Watching %s for changes...\n", code, opts.PolicyPath)
		})
	},
}

// watchPolicy calls audit once and then after every burst of writes to the policy
// file until ctx is done.
func watchPolicy(ctx context.Context, opts auditOptions, audit func()) error {
	abs, err := filepath.Abs(opts.PolicyPath)
	if err != nil {
		return exitWith(ExitFatal, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return exitWith(ExitFatal, fmt.Errorf("failed to start watcher: %w", err))
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return exitWith(ExitFatal, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err))
	}

	audit()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			log.Debug("policy changed", "event", event.Op.String())
			debounce = time.After(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		case <-debounce:
			debounce = nil
			audit()
		}
	}
}

func init() {
	addAuditFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
