// Package cli defines the aisaas command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aisaas/backend/internal/config"
	"github.com/aisaas/backend/internal/logging"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	plansFile string
	logLevel  string
}

// RootCmd returns the root command. Running it without a subcommand serves
// the API.
func RootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "aisaas",
		Short:         "AI content generation API",
		Long:          "aisaas serves the article, blog title, image and resume review tools behind Clerk sessions.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.plansFile, "plans", "", "Path to the plans YAML file (overrides PLANS_FILE)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	cmd.AddCommand(serveCmd(opts), migrateCmd(opts))
	return cmd
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return RootCmd().ExecuteContext(ctx)
}

func loadConfig(opts *options) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if opts.plansFile != "" {
		plans, err := config.LoadPlansFromPath(opts.plansFile)
		if err != nil {
			return nil, nil, err
		}
		cfg.PlansFile, cfg.Plans = opts.plansFile, plans
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, logging.New("aisaas", cfg.Logging.Level, cfg.Logging.Format), nil
}
