package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"judgebench/internal/app"
	"judgebench/internal/config"
)

var version = "dev"

// opener builds the application services for a command.
type opener func(ctx context.Context) (*app.App, error)

func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func newRootCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "judgectl",
		Short: "judgectl - manage judges and run AI-judge evaluations",
		Long: `judgectl manages judges, submissions and assignments and runs evaluation
passes against the configured judging model.

Configuration is read from the environment (and an optional .env file), the
same way the API server reads it.`,
		Version:      version,
		SilenceUsage: true,
	}

	debug := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if *debug {
			level = slog.LevelDebug
		}
		logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newJudgesCommand(open))
	cmd.AddCommand(newSubmissionsCommand(open))
	cmd.AddCommand(newAssignCommand(open))
	cmd.AddCommand(newRunCommand(open))
	cmd.AddCommand(newResultsCommand(open))
	cmd.AddCommand(newStatsCommand(open))
	cmd.AddCommand(newExportCommand(open))
	cmd.AddCommand(newFetchCommand(open))
	cmd.AddCommand(newSmokeCommand())

	return cmd
}

// withApp opens the services, runs fn and closes them again.
func withApp(cmd *cobra.Command, open opener, fn func(a *app.App) error) error {
	a, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
