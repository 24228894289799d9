package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-editor/engine/core"
)

var (
	// Global flags
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "anima-editor",
	Short: "Headless editor session on top of the anima renderer",
	Long: `anima-editor drives the renderer frame loop without a window.
It churns descriptor tables, resizes a viewport and bakes an environment map,
then reports descriptor leaks at shutdown.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("log-level") {
			return nil
		}
		level, err := core.ParseLogLevel(logLevel)
		if err != nil {
			return err
		}
		core.SetLogLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// Execute runs the command line and exits with status 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
