package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/coursegen/internal/app"
	"github.com/yungbote/coursegen/internal/cli/printer"
)

type rootOptions struct {
	configPath string
	version    string
}

// NewRootCmd builds the coursegen command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &rootOptions{version: version}
	root := &cobra.Command{
		Use:   "coursegen",
		Short: "Generate structured courses from a topic",
		Long: `coursegen plans a course from a topic, then generates its modules,
chapters and quizzes one module at a time through a durable job queue.

Run "coursegen serve" for the API, "coursegen worker" for job runners,
or "coursegen generate" to start a course from the terminal.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors:      true,
		SilenceUsage:       true,
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default ./config/config.yaml or ./config.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newGenerateCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

// Execute runs the CLI. Errors are printed here unless a command already
// reported them through the printer.
func Execute(version string) error {
	err := NewRootCmd(version).Execute()
	if err != nil && !printer.Reported(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func (o *rootOptions) loadConfig() (app.Config, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return app.Config{}, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{
				"Check the file passed with --config",
				"Override single keys with COURSEGEN_* env vars, e.g. COURSEGEN_DB_DSN",
			},
		)
	}
	return cfg, nil
}

// newApp loads config and wires the full app. The caller closes it.
func (o *rootOptions) newApp(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, o.version)
	if err != nil {
		return nil, printer.Error("startup failed", err.Error(), nil)
	}
	return a, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
