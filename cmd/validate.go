package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/config"
	"github.com/user/gosec-audit/pkg/policy"
)

var validateCmd = &cobra.Command{
	Use:   "validate <policy>",
	Short: "Load and validate a policy without evaluating it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := policy.Load(args[0])
		if err != nil {
			return exitWith(ExitFatal, err)
		}

		reg, err := newRegistry(config.Default(), nil)
		if err != nil {
			return exitWith(ExitFatal, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Policy '%s' is valid: %d controls.\n", p.Name, len(p.Controls))

		var unknown []string
		for _, ct := range p.CheckTypes() {
			if _, ok := reg.Handler(ct); !ok {
				unknown = append(unknown, ct)
			}
		}
		if len(unknown) > 0 {
			fmt.Fprintf(out, "Check types without a handler (reported as UNKNOWN):\n")
			for _, ct := range unknown {
				fmt.Fprintf(out, "  - %s\n", ct)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
