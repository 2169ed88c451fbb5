// Command radb loads a table fixture, runs a schedule of pseudo-statements
// against it, and reports the resulting transaction outcomes (§4.14).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BigDataAnalyticsGroup/radb/internal/dblog"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "radb",
	Short: "relational algebra and transaction manager playground",
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	cobra.OnInitialize(func() {
		if verbose {
			dblog.SetLevel(dblog.DebugLevel)
		}
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(precedenceCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
