// Package metrics collects host resource utilization and exposes it as
// Prometheus gauges, scraped from the agent's own /metrics endpoint.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"
)

var (
	cpuPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Subsystem: "agent",
		Name:      "cpu_percent",
		Help:      "Host CPU utilization percentage.",
	})
	memPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Subsystem: "agent",
		Name:      "mem_percent",
		Help:      "Host memory utilization percentage.",
	})
	diskPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Subsystem: "agent",
		Name:      "disk_percent",
		Help:      "Root filesystem utilization percentage.",
	})

	sampleInterval = 15 * time.Second
)

// SystemMetrics is a snapshot of current host resource usage. Values are
// percentages (0–100).
type SystemMetrics struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
}

// Collect samples CPU, memory, and disk utilization. cpu.Percent blocks for
// a short interval to compute a usable sample rather than returning an
// instantaneous (and often misleading) reading.
func Collect(ctx context.Context) (SystemMetrics, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return SystemMetrics{}, err
	}
	var cpuPct float64
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemMetrics{}, err
	}

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return SystemMetrics{}, err
	}

	return SystemMetrics{
		CPUPercent:  cpuPct,
		MemPercent:  vm.UsedPercent,
		DiskPercent: du.UsedPercent,
	}, nil
}

// RunSampler periodically refreshes the Prometheus gauges until ctx is
// cancelled.
func RunSampler(ctx context.Context, logger *zap.Logger) {
	log := logger.Named("metrics")
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m, err := Collect(ctx)
			if err != nil {
				log.Warn("failed to sample host metrics", zap.Error(err))
				continue
			}
			cpuPercent.Set(m.CPUPercent)
			memPercent.Set(m.MemPercent)
			diskPercent.Set(m.DiskPercent)
		}
	}
}

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
