// Package main is the entry point for the dispatch-agent binary. It wires
// the Agent Server, Reporter Link, and Executor together and blocks until
// shutdown.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Build the Reporter Link and start its connect/report loop
//  4. Build the Executor, wired to report through the link
//  5. Build the Agent Server, wired to dispatch through the executor
//  6. Start the metrics endpoint
//  7. Block until SIGINT/SIGTERM or a component fails, then shut down
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/actiondispatch/dispatch/agent/internal/executor"
	"github.com/actiondispatch/dispatch/agent/internal/metrics"
	"github.com/actiondispatch/dispatch/agent/internal/reporter"
	"github.com/actiondispatch/dispatch/agent/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	agentName       string
	agentHostname   string
	agentPort       int
	coordinatorAddr string
	metricsAddr     string
	logLevel        string
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
		Use:   "dispatch-agent",
		Short: "Dispatch agent — runs dispatched commands on this host",
		Long: `Dispatch agent registers with the coordinator over a single outbound link,
listens for dispatched commands on a local TCP port, and reports each
command's outcome back to the coordinator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	defaultHostname, _ := os.Hostname()
	port, _ := strconv.Atoi(envOrDefault("AGENT_PORT", "8081"))

	root.PersistentFlags().StringVar(&cfg.agentName, "agent-name", envOrDefault("AGENT_NAME", "default_agent"), "Unique name this agent registers under")
	root.PersistentFlags().StringVar(&cfg.agentHostname, "agent-hostname", envOrDefault("DISPATCH_AGENT_HOSTNAME", defaultHostname), "Hostname the coordinator should dial to reach this agent")
	root.PersistentFlags().IntVar(&cfg.agentPort, "agent-port", port, "TCP listen port for the Agent Server")
	root.PersistentFlags().StringVar(&cfg.coordinatorAddr, "coordinator-addr", envOrDefault("DISPATCH_COORDINATOR_ADDR", "localhost:8080"), "Coordinator's Completion Ingestor address (host:port)")
	root.PersistentFlags().StringVar(&cfg.metricsAddr, "metrics-addr", envOrDefault("DISPATCH_METRICS_ADDR", ":9101"), "HTTP listen address for Prometheus metrics")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("DISPATCH_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dispatch-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting dispatch agent",
		zap.String("version", version),
		zap.String("agent_name", cfg.agentName),
		zap.String("coordinator_addr", cfg.coordinatorAddr),
		zap.Int("agent_port", cfg.agentPort),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	link := reporter.New(cfg.coordinatorAddr, reporter.Identity{
		Name:     cfg.agentName,
		Hostname: cfg.agentHostname,
		Port:     int32(cfg.agentPort),
	}, logger)

	exec := executor.New(cfg.agentName, link, logger)
	agentSrv := server.New(fmt.Sprintf(":%d", cfg.agentPort), exec, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return link.Run(gctx) })
	g.Go(func() error { return agentSrv.Serve(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.metricsAddr, logger) })
	g.Go(func() error { metrics.RunSampler(gctx, logger); return nil })

	<-gctx.Done()
	logger.Info("shutting down dispatch agent")
	agentSrv.Close()

	if err := g.Wait(); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("component failed: %w", err)
		}
		logger.Warn("component error during shutdown", zap.Error(err))
	}

	logger.Info("dispatch agent stopped")
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
