// Package cli implements the etl command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/bootstrap"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/config"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/observability/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string
	EnvFile  string
	LogLevel string
}

var validFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Telegram medical data pipeline",
		Long: `Runs the acquire, load, transform and enrich pipeline once, or any of
its stages by hand, against the configured warehouse.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return config.LoadDotenv(opts.EnvFile)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newLoadCommand(opts))
	cmd.AddCommand(newEnrichCommand(opts))
	cmd.AddCommand(newUnprocessedCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newArtifactsCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) config() config.Config {
	cfg := config.Load()
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg
}

func (o *RootOptions) logger(cmd *cobra.Command, cfg config.Config) *slog.Logger {
	return logging.NewTextLogger(cmd.ErrOrStderr(), "etl", cfg.LogLevel)
}

// withApp boots the application for the duration of fn.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg := o.config()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := bootstrap.New(ctx, cfg, o.logger(cmd, cfg))
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
