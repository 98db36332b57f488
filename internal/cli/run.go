package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"coinfall/client/internal/app"
)

// NewRunCommand starts the client and blocks until interrupted.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the client",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx, app.Config{ConfigPath: opts.ConfigPath})
		},
	}
}
