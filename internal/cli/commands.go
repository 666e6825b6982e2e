package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Naty-12/telegram-medical-data-pipeline/internal/bootstrap"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/core/domain"
	"github.com/Naty-12/telegram-medical-data-pipeline/internal/pipeline"
)

func newRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the whole pipeline once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				run, err := app.Trigger.Trigger(ctx, domain.TriggerCLI)
				if err != nil {
					return err
				}
				if err := writeRun(cmd.OutOrStdout(), opts.Format, run); err != nil {
					return err
				}
				if run.Status != domain.RunSucceeded {
					return fmt.Errorf("pipeline %s failed at stage %q", run.Pipeline, run.FailedStage)
				}
				return nil
			})
		},
	}
}

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the warehouse tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// bootstrap.New applies the schema.
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			})
		},
	}
}

func newLoadCommand(opts *RootOptions) *cobra.Command {
	cfg := pipeline.LoadConfig{}
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load lake messages and images into the raw tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				return invokeStage(ctx, cmd, app, "load", &cfg)
			})
		},
	}
	cmd.Flags().StringVar(&cfg.LakeRoot, "lake-root", ".", "data lake root directory")
	cmd.Flags().StringVar(&cfg.MessagesDir, "messages-dir", "data/raw/telegram_messages", "messages directory under the lake root")
	cmd.Flags().StringVar(&cfg.ImagesDir, "images-dir", "data/raw/telegram_images", "images directory under the lake root")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 0, "rows per transaction (0 uses the default)")
	return cmd
}

func newEnrichCommand(opts *RootOptions) *cobra.Command {
	cfg := pipeline.EnrichConfig{}
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Label images that have no detections yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				return invokeStage(ctx, cmd, app, "enrich", &cfg)
			})
		},
	}
	cmd.Flags().StringVar(&cfg.ArtifactBaseDir, "artifact-base-dir", ".", "directory image locations are relative to")
	cmd.Flags().Float64Var(&cfg.MinScore, "min-score", 0.01, "drop labels scored below this")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch-size", 0, "images per transaction (0 uses the default)")
	return cmd
}

func invokeStage(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, name string, stageConfig any) error {
	action, err := app.Actions.NewAction(name, stageConfig)
	if err != nil {
		return err
	}
	diagnostic, err := action.Invoke(ctx)
	if diagnostic != "" {
		fmt.Fprintln(cmd.OutOrStdout(), diagnostic)
	}
	return err
}

func newUnprocessedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unprocessed",
		Short: "List images that the next enrich run would label",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				units, err := app.Store.SelectUnprocessed(ctx)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), units)
				}
				for _, u := range units {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", u.SubjectKey, u.SubjectLocation)
				}
				return nil
			})
		},
	}
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show row counts of the warehouse tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				stats, err := app.Store.Stats(ctx)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "raw_telegram_messages  %d\nraw_telegram_images    %d\nimage_detections       %d\nmissing_artifacts      %d\n",
					stats.SourceRecords, stats.Attachments, stats.Annotations, stats.ArtifactMiss)
				return nil
			})
		},
	}
}

func newArtifactsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Manage images recorded as missing",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "requeue",
		Short: "Make images recorded as missing eligible for enrichment again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				n, err := app.Store.RequeueArtifactMisses(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d image(s)\n", n)
				return nil
			})
		},
	})
	return cmd
}

func newValidateCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline definition without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = opts.config().PipelineFile
			}
			levels, err := pipeline.Validate(file)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"valid": true, "levels": levels})
			}
			for i, level := range levels {
				fmt.Fprintf(cmd.OutOrStdout(), "level %d: %v\n", i, level)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "pipeline definition (default PIPELINE_FILE)")
	return cmd
}
