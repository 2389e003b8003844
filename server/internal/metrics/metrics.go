// Package metrics exposes the coordinator's Prometheus instrumentation:
// dispatch attempts/successes, job completions, and a gauge of currently
// connected agents.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	DispatchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Subsystem: "coordinator",
		Name:      "dispatch_attempts_total",
		Help:      "Total number of job dispatch attempts to agents.",
	})
	DispatchSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Subsystem: "coordinator",
		Name:      "dispatch_successes_total",
		Help:      "Total number of job dispatches acknowledged by an agent.",
	})
	JobCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Subsystem: "coordinator",
		Name:      "job_completions_total",
		Help:      "Total number of JobComplete reports ingested.",
	})
	ConnectedAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Subsystem: "coordinator",
		Name:      "connected_agents",
		Help:      "Number of agents currently connected to the Registry.",
	})
)

// Serve starts the /metrics HTTP endpoint and blocks until ctx is
// cancelled.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Named("metrics").Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
