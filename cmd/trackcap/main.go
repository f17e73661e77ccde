package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/genricoloni/trackcap/internal/artwork"
	"github.com/genricoloni/trackcap/internal/config"
	"github.com/genricoloni/trackcap/internal/domain"
	"github.com/genricoloni/trackcap/internal/encoder"
	"github.com/genricoloni/trackcap/internal/engine"
	"github.com/genricoloni/trackcap/internal/executor"
	"github.com/genricoloni/trackcap/internal/metrics"
	"github.com/genricoloni/trackcap/internal/monitor"
	"github.com/genricoloni/trackcap/internal/routing"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// AppOptions is the application graph for cfg
func AppOptions(cfg *config.AppConfig) fx.Option {
	return fx.Options(
		fx.Supply(cfg),

		// Provide dependencies
		fx.Provide(
			func(cfg *config.AppConfig) (*zap.Logger, error) {
				return newLogger(cfg.Debug)
			},
			prometheus.NewRegistry,
			func(reg *prometheus.Registry) *metrics.Metrics {
				return metrics.New(reg)
			},
			func(logger *zap.Logger, cfg *config.AppConfig, reg *prometheus.Registry) *metrics.Server {
				return metrics.NewServer(logger, cfg.MetricsAddr, reg)
			},
			fx.Annotate(executor.NewExecRunner, fx.As(new(domain.CommandRunner))),
			routing.NewPulseRouter,
			monitor.NewMprisMonitor,
			newEncoder,
			newCoverSaver,
			newOrchestrator,
		),

		// Lifecycle hooks
		fx.Invoke(registerHooks),
	)
}

// runDaemon runs the recorder until the player pauses, the queue ends or
// the process is interrupted
func runDaemon(cfg *config.AppConfig) error {
	app := fx.New(
		AppOptions(cfg),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
	)

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, cancelStart := context.WithTimeout(ctx, app.StartTimeout())
	defer cancelStart()

	if err := app.Start(startCtx); err != nil {
		if errors.Is(err, monitor.ErrPlayerUnreachable) {
			return fmt.Errorf("could not connect to the player, it has to be running before trackcap starts: %w", err)
		}
		return err
	}

	code := 0
	select {
	case <-ctx.Done():
	case sig := <-app.Wait():
		code = sig.ExitCode
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()

	if err := app.Stop(stopCtx); err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("exited with code %d", code)
	}
	return nil
}

// newLogger creates a new zap logger instance
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newEncoder(logger *zap.Logger, cfg *config.AppConfig, router *routing.PulseRouter, m *metrics.Metrics) *encoder.Registry {
	return encoder.NewRegistry(logger.Named("encoder"), encoder.Options{
		OutputDir:  cfg.GetOutputDir(),
		UseTmpFile: cfg.UseTmpFile,
		StopGrace:  cfg.Timings.StopGrace,
		Command:    encoder.FFmpegCommand(cfg.FFmpeg, router.Monitor()),
		Debug:      cfg.Debug,
	}, m)
}

// newCoverSaver returns nil unless covers are wanted
func newCoverSaver(logger *zap.Logger, cfg *config.AppConfig) domain.CoverSaver {
	if !cfg.SaveCover {
		return nil
	}
	return artwork.NewSaver(logger.Named("artwork"), artwork.NewHTTPFetcher(logger.Named("artwork"), artwork.Limits{
		Timeout:  cfg.CoverTimeout,
		MaxBytes: cfg.CoverMaxSize,
	}))
}

func newOrchestrator(
	logger *zap.Logger,
	cfg *config.AppConfig,
	mon *monitor.MprisMonitor,
	router *routing.PulseRouter,
	enc *encoder.Registry,
	covers domain.CoverSaver,
	m *metrics.Metrics,
	shutdowner fx.Shutdowner,
) *engine.Orchestrator {
	exit := func() {
		if err := shutdowner.Shutdown(fx.ExitCode(0)); err != nil {
			logger.Error("Failed to request shutdown", zap.Error(err))
		}
	}
	return engine.NewOrchestrator(logger, cfg, mon, mon, router, enc, covers, m, exit)
}

// registerHooks sets up application lifecycle hooks. Hooks stop in reverse
// order, so recordings are finalized while the player is still observed.
func registerHooks(
	lc fx.Lifecycle,
	logger *zap.Logger,
	cfg *config.AppConfig,
	mon *monitor.MprisMonitor,
	srv *metrics.Server,
	orch *engine.Orchestrator,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cfg.LogSummary(logger)
			if err := os.MkdirAll(cfg.GetOutputDir(), 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down")
			_ = logger.Sync()
			return nil
		},
	})
	lc.Append(fx.Hook{OnStart: mon.Start, OnStop: mon.Stop})
	lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Stop})
	lc.Append(fx.Hook{OnStart: orch.Start, OnStop: orch.Stop})
}
