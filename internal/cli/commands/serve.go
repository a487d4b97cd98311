package commands

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/cli/printer"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API and the realtime event stream.

With --worker (the default) the same process also runs the job runner
selected by runner.mode.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.Serve(gctx) })
			if withWorker {
				g.Go(func() error { return a.RunWorkers(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withWorker, "worker", true, "Also run the job runner in this process")
	return cmd
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the job runner only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := opts.newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.RunWorkers(ctx)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenStore(cfg)
			if err != nil {
				return printer.Error("database unavailable", err.Error(), []string{"Check db.driver and db.dsn"})
			}
			defer store.Close()
			if err := store.Migrate(); err != nil {
				return printer.Error("migration failed", err.Error(), nil)
			}
			printer.Success("schema up to date (%s)\n", cfg.DB.Driver)
			return nil
		},
	}
}
