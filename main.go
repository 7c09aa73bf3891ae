package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrexodia/app-launcher/config"
	"github.com/mrexodia/app-launcher/session"
	"github.com/mrexodia/app-launcher/ui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		workdir    string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:           "app-launcher",
		Short:         "Start the backend on a free port and show it in a window once ready",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			err := run(cmd.Context(), configPath, workdir, logger)
			if err != nil {
				reportError(err)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultFile, "path to the launcher configuration")
	cmd.Flags().StringVarP(&workdir, "workdir", "w", "", "backend working directory (overrides the configuration)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, configPath, workdir string, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return &session.FatalError{Op: "load configuration", Err: err}
	}
	if workdir != "" {
		cfg.Workdir = workdir
	}
	if abs, err := filepath.Abs(cfg.Workdir); err == nil {
		cfg.Workdir = abs
	}

	meta := config.LoadMetadata(cfg.MetadataPath())
	logger.Info("starting", "app", meta.Title(), "workdir", cfg.Workdir, "command", cfg.Command)

	s := session.New(cfg, meta, session.Deps{Logger: logger})
	return s.Run(ctx)
}

// reportError shows fatal errors in a dialog since no window exists yet.
// Other errors are only logged.
func reportError(err error) {
	var fatal *session.FatalError
	if errors.As(err, &fatal) {
		ui.ShowError("Initialization Error", fatal.Error())
		return
	}
	slog.Error("launcher stopped", "error", err)
	if errors.Is(err, session.ErrBackendExited) {
		fmt.Fprintln(os.Stderr, "The backend stopped unexpectedly. See the log directory for its output.")
	}
}
