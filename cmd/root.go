package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/config"
	"github.com/user/gosec-audit/pkg/log"
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFindings = 1
	ExitFatal    = 2
)

var rootCmd = &cobra.Command{
	Use:   "gosec-audit",
	Short: "Policy-driven host hardening audit",
	Long: `gosec-audit evaluates a host against a declarative hardening baseline
(YAML, JSON or TOML), prints a console report, writes a JSON report for CI and
keeps a local history of runs so regressions stand out.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log.SetDebug(DebugMode)
		if err := config.LoadDotEnv(".env"); err != nil {
			log.Warn("ignoring unreadable .env", "error", err)
		}
		return nil
	},
}

var (
	DebugMode  bool
	ConfigPath string
)

// exitError carries a specific exit code out of a command. A nil err means the
// command already reported everything it had to say.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	if code == ExitOK && err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitFatal
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&DebugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&ConfigPath, "config", "", "Config file (default ~/.gosec-audit/config.yaml)")
}
