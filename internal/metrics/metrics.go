// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/patchbay/internal/engine"
)

// Registry holds the simulation metrics. It implements engine.Observer.
type Registry struct {
	registry *prometheus.Registry

	TicksTotal    prometheus.Counter
	TickDuration  prometheus.Histogram
	RunsTotal     prometheus.Counter
	DegradedTotal *prometheus.CounterVec
	SimTime       prometheus.Gauge
	Nodes         prometheus.Gauge
	PortValue     *prometheus.GaugeVec

	mu      sync.Mutex
	lastRun string
}

// NewRegistry creates a registry with every metric initialised.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}
	f := promauto.With(reg)

	r.TicksTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "patchbay_ticks_total",
		Help: "Total number of simulation ticks executed",
	})
	r.TickDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "patchbay_tick_duration_seconds",
		Help:    "Wall-clock duration of one tick in seconds",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
	})
	r.RunsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "patchbay_runs_total",
		Help: "Total number of runs observed (a reset starts a new run)",
	})
	r.DegradedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patchbay_node_degraded_total",
			Help: "Total number of failed node computes",
		},
		[]string{"node", "name"},
	)
	r.SimTime = f.NewGauge(prometheus.GaugeOpts{
		Name: "patchbay_sim_time_seconds",
		Help: "Simulated time at the end of the last tick",
	})
	r.Nodes = f.NewGauge(prometheus.GaugeOpts{
		Name: "patchbay_nodes",
		Help: "Number of nodes in the graph at the last tick",
	})
	r.PortValue = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "patchbay_port_value",
			Help: "Output port value at the end of the last tick",
		},
		[]string{"node", "port"},
	)
	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// TickCompleted implements engine.Observer.
func (r *Registry) TickCompleted(_ context.Context, report engine.TickReport) error {
	r.mu.Lock()
	if report.RunID != r.lastRun {
		r.lastRun = report.RunID
		r.RunsTotal.Inc()
		r.PortValue.Reset()
	}
	r.mu.Unlock()

	r.TicksTotal.Inc()
	r.TickDuration.Observe(report.Elapsed.Seconds())
	r.SimTime.Set(report.Time)
	r.Nodes.Set(float64(report.Nodes))
	for _, d := range report.Degraded {
		r.DegradedTotal.WithLabelValues(strconv.FormatInt(int64(d.Node), 10), d.Name).Inc()
	}
	for _, s := range report.Samples {
		r.PortValue.WithLabelValues(strconv.FormatInt(int64(s.Node), 10), s.Port).Set(s.Value)
	}
	return nil
}

// Serve exposes the registry at /metrics on addr until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		if err := srv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	}
}
