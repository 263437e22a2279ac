package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the rserved version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("rserved %s (commit %s, built %s)\n", Version, Commit, Date)
		return nil
	},
}
