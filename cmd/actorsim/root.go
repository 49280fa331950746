package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configDir string

// NewRootCmd creates the root command for the actorsim CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actorsim",
		Short: "Drive a simulated actor from velocity commands",
		Long: `actorsim runs the actor velocity controller against a headless
fixed-step world. Commands arrive over a WebSocket bridge or as host calls
read from stdin.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configDir, "config", "", "directory containing "+configFileHint)

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.Println(cmd.Root().Version)
			return nil
		},
	}
}
