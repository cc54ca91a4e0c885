package cli

import (
	"context"

	"github.com/spf13/cobra"

	app "github.com/aisaas/backend/internal/app"
)

func serveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
}

func serve(ctx context.Context, opts *options) error {
	cfg, log, err := loadConfig(opts)
	if err != nil {
		return err
	}
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.WithField("addr", cfg.Server.Addr()).WithField("version", Version).Info("starting aisaas")
	return application.Run(ctx)
}
