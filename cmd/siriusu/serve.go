package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/siriusu/siriusu/internal/config"
	"github.com/siriusu/siriusu/internal/runtime"
	"github.com/siriusu/siriusu/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the server supervisor and the file API",
		Long: `Loads the configuration, launches the bedrock dedicated server when
bds_directory is set, and serves the file API until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	dev := devMode || config.IsDevMode()
	if dev {
		if err := config.LoadDotEnv(".env"); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dev {
		cfg.ApplyDevOverrides()
	}

	level := new(slog.LevelVar)
	lvl, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	level.Set(lvl)

	redact := telemetry.NewRedactHandler(telemetry.NewHandler(cmd.OutOrStdout(), cfg.LogFormat, level))
	redact.AddSecret(cfg.ServerToken)
	logger := slog.New(redact)
	slog.SetDefault(logger)
	if dev {
		logger.Debug("Running in development mode")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := runtime.New(runtime.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: telemetry.NewMetrics(),
		Console: os.Stdin,
		Version: version,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	}

	rt.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Serve(gctx, ln)
	})
	g.Go(func() error {
		err := config.Watch(gctx, configPath, logger, onReload(logger, level, cfg, dev))
		if err != nil {
			logger.Warn("config reload disabled", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// onReload returns the config watcher callback. Reloaded files get the same
// development overrides as the startup config before they are compared.
func onReload(logger *slog.Logger, level *slog.LevelVar, current *config.Config, dev bool) func(*config.Config) {
	return func(next *config.Config) {
		if dev {
			next.ApplyDevOverrides()
		}
		applyReload(logger, level, current, next)
	}
}

// applyReload carries over the settings that can change without a restart.
// Only log_level qualifies; other edits are reported and ignored.
func applyReload(logger *slog.Logger, level *slog.LevelVar, current, next *config.Config) {
	if next.LogLevel != current.LogLevel {
		lvl, err := telemetry.ParseLevel(next.LogLevel)
		if err != nil {
			return
		}
		level.Set(lvl)
		logger.Info("log level changed", "from", current.LogLevel, "to", next.LogLevel)
		current.LogLevel = next.LogLevel
	}
	if next.ServerHost != current.ServerHost || next.ServerPort != current.ServerPort ||
		next.ServerToken != current.ServerToken || next.BDSDirectory != current.BDSDirectory ||
		next.SandboxEnabled() != current.SandboxEnabled() {
		logger.Warn("config changes other than log_level take effect after a restart")
	}
}
