package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/actiondispatch/dispatch/server/internal/ingest"
	"github.com/actiondispatch/dispatch/server/internal/metrics"
	"github.com/actiondispatch/dispatch/server/internal/registry"
	"github.com/actiondispatch/dispatch/server/internal/scheduler"
	"github.com/actiondispatch/dispatch/server/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	ingestAddr  string
	metricsAddr string
	mongoURI    string
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "dispatch-coordinator",
		Short: "Dispatch coordinator — the central job-dispatch server",
		Long: `The coordinator discovers agents, schedules due job definitions, dispatches
them over a custom TCP wire protocol, and ingests completion reports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.ingestAddr, "ingest-addr", envOrDefault("DISPATCH_INGEST_ADDR", ":8080"), "TCP listen address for the Completion Ingestor")
	root.PersistentFlags().StringVar(&cfg.metricsAddr, "metrics-addr", envOrDefault("DISPATCH_METRICS_ADDR", ":9100"), "HTTP listen address for Prometheus metrics")
	root.PersistentFlags().StringVar(&cfg.mongoURI, "mongo-uri", envOrDefault("MONGODB_URI", "mongodb://localhost:27017"), "Document store connection URI")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("DISPATCH_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dispatch-coordinator %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting dispatch coordinator",
		zap.String("version", version),
		zap.String("ingest_addr", cfg.ingestAddr),
		zap.String("metrics_addr", cfg.metricsAddr),
		zap.String("log_level", cfg.logLevel),
	)
	logger.Info("+------------------------------------------+")
	logger.Info(fmt.Sprintf("| dispatch-coordinator %-20s |", version))
	logger.Info(fmt.Sprintf("| ingest: %-32s |", cfg.ingestAddr))
	logger.Info("+------------------------------------------+")

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Connect(ctx, cfg.mongoURI, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn("store close error", zap.Error(err))
		}
	}()

	reg, err := registry.New(st, logger)
	if err != nil {
		return fmt.Errorf("failed to create registry: %w", err)
	}
	if err := reg.Start(ctx); err != nil {
		return fmt.Errorf("failed to start registry: %w", err)
	}
	defer func() {
		if err := reg.Stop(); err != nil {
			logger.Warn("registry shutdown error", zap.Error(err))
		}
	}()

	sched, err := scheduler.New(st, reg, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Warn("scheduler shutdown error", zap.Error(err))
		}
	}()

	in := ingest.New(cfg.ingestAddr, st, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return in.Serve(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.metricsAddr, logger) })

	<-gctx.Done()
	logger.Info("shutting down dispatch coordinator")
	in.Close()

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("component failed: %w", err)
		}
		logger.Warn("component error during shutdown", zap.Error(err))
	}

	logger.Info("dispatch coordinator stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
