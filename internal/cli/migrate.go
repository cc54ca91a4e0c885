package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/aisaas/backend/internal/app"
	"github.com/aisaas/backend/internal/platform/migrations"
)

func migrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("DATABASE_URL is required")
			}
			db, err := app.OpenDatabase(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Migrate(cmd.Context(), db.DB, cfg.Database.Driver); err != nil {
				return err
			}
			log.WithField("driver", cfg.Database.Driver).Info("migrations applied")
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
