package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "kvcache",
		Short:        "In-memory key/value cache service",
		Long:         "kvcache is a volatile key/value cache with per-key TTLs, glob search and atomic batch writes",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		serveCmd(),
		mcpCmd(),
		invalidateCmd(),
		keygenCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
