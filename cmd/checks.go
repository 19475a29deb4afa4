package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/gosec-audit/pkg/config"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List the check types this build can evaluate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry(config.Default(), nil)
		if err != nil {
			return exitWith(ExitFatal, err)
		}
		out := cmd.OutOrStdout()
		for _, ct := range reg.CheckTypes() {
			fmt.Fprintf(out, "%-26s %s\n", ct, reg.Describe(ct))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checksCmd)
}
