package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kuitang/linknotes/internal/app"
	"github.com/kuitang/linknotes/internal/config"
	"github.com/kuitang/linknotes/internal/obs"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	verbose bool
	dbPath  string
	noS3    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "linknotes",
		Short: "Notes that keep their backlinks up to date",
		Long: `linknotes stores short titled notes and derives, for every note, the titles
of the other notes whose content mentions it.

Database and storage settings come from the same environment variables as the
server (DATABASE_PATH, DATABASE_KEY, BUCKET_NAME, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.Init()
			if opts.verbose {
				obs.SetLevel(slog.LevelDebug)
			} else {
				obs.SetLevel(slog.LevelWarn)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Database file (overrides DATABASE_PATH env var)")
	cmd.PersistentFlags().BoolVar(&opts.noS3, "no-s3", false, "Use mock S3 storage (in-memory) for exports")

	cmd.AddCommand(
		newListCmd(opts),
		newViewCmd(opts),
		newCreateCmd(opts),
		newUpdateCmd(opts),
		newDeleteCmd(opts),
		newBacklinksCmd(opts),
		newRebuildCmd(opts),
		newExportCmd(opts),
		newMCPCmd(opts),
	)
	return cmd
}

func (o *rootOptions) loadConfig(withExports bool) (*config.Config, error) {
	flags := config.Flags{DBPath: o.dbPath, NoS3: o.noS3}
	if !withExports {
		// Export credentials are irrelevant to commands that only touch the database.
		flags.NoS3 = true
	}
	return config.LoadConfig(flags)
}

// openStore opens the database for commands that never export.
func (o *rootOptions) openStore() (*app.App, error) {
	cfg, err := o.loadConfig(false)
	if err != nil {
		return nil, err
	}
	return app.OpenStore(cfg)
}

// openWithExports also connects export storage.
func (o *rootOptions) openWithExports(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig(true)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg)
}

func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return obs.WithTransport(ctx, "cli")
}
