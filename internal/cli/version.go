package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/crawl-engine/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and build time.",
	Run: func(c *cobra.Command, args []string) {
		fmt.Fprintln(c.OutOrStdout(), build.Info(rootCmd.Name()))
	},
}
