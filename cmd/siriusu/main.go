// Package main is the entry point for the siriusu daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siriusu/siriusu/internal/config"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configPath string
	devMode    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "siriusu",
		Short: "Local control daemon for a bedrock dedicated server",
		Long: `siriusu launches the bedrock dedicated server, relays console input to it,
classifies its log output, and exposes sandboxed file operations over HTTP
for the siriusu behavior pack.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", config.FileName, "Path to configuration file")
	root.PersistentFlags().BoolVar(&devMode, "dev", false, "Development mode: load .env and honor BDS_DIR")

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
