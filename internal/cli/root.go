// Package cli defines the coinfall command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the root command for the Coinfall client.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "coinfall",
		Short: "Coinfall - Telegram tap game client",
		Long:  "Runs the Coinfall client: local game state, backend sync, and the web view bridge.",
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewBoostersCommand(opts))

	return cmd
}
