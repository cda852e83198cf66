// Package commands implements the nyat64ctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// debugAddr is the daemon's debug/metrics HTTP address (host:port).
	debugAddr string
)

// rootCmd is the top-level cobra command for nyat64ctl.
var rootCmd = &cobra.Command{
	Use:   "nyat64ctl",
	Short: "CLI client for the nyat64 daemon",
	Long:  "nyat64ctl queries the nyat64 daemon's read-only debug HTTP surface to inspect the mapping table and ARP cache.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&debugAddr, "addr", "localhost:9100",
		"nyat64 daemon debug address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(dumpCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
