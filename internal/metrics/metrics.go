// ============================================================================
// LSSEFT Metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect scheduler and cache statistics and expose them over HTTP.
//
// Metrics:
//
//   1. Counters (labelled by kind or family):
//      - lsseft_items_assigned_total{kind}: items sent to workers
//      - lsseft_items_persisted_total{kind}: results committed to the store
//      - lsseft_phases_total{kind}: completed phases
//      - lsseft_rows_reconciled_total{family}: partial rows deleted by the resolver
//
//   2. Histograms:
//      - lsseft_item_latency_seconds{kind}: assignment to persisted result
//      - lsseft_phase_duration_seconds{kind}: handshake to last EndOfWorkAck
//
//   3. Gauges:
//      - lsseft_missing_items{family}: size of the last resolved missing set
//      - lsseft_active_workers: workers not yet retired in the current phase
//
// Example queries:
//
//   # results per second during a phase
//   rate(lsseft_items_persisted_total[1m])
//
//   # work still outstanding after resolution
//   sum(lsseft_missing_items)
//
// Registration:
//   Collectors are registered on the Registerer passed to NewCollector, so
//   tests can use a private registry.
//
// ============================================================================

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus collectors.
type Collector struct {
	itemsAssigned  *prometheus.CounterVec
	itemsPersisted *prometheus.CounterVec
	phases         *prometheus.CounterVec
	reconciled     *prometheus.CounterVec

	itemLatency   *prometheus.HistogramVec
	phaseDuration *prometheus.HistogramVec

	missing       *prometheus.GaugeVec
	activeWorkers prometheus.Gauge
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		itemsAssigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lsseft_items_assigned_total",
			Help: "Work items sent to workers",
		}, []string{"kind"}),
		itemsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lsseft_items_persisted_total",
			Help: "Results committed to the store",
		}, []string{"kind"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lsseft_phases_total",
			Help: "Completed scatter/gather phases",
		}, []string{"kind"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lsseft_rows_reconciled_total",
			Help: "Partial rows deleted while resolving missing sets",
		}, []string{"family"}),
		itemLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lsseft_item_latency_seconds",
			Help:    "Time from assignment to persisted result",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lsseft_phase_duration_seconds",
			Help:    "Duration of a complete phase",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"kind"}),
		missing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lsseft_missing_items",
			Help: "Size of the most recent missing set",
		}, []string{"family"}),
		activeWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lsseft_active_workers",
			Help: "Workers still active in the current phase",
		}),
	}

	reg.MustRegister(
		c.itemsAssigned,
		c.itemsPersisted,
		c.phases,
		c.reconciled,
		c.itemLatency,
		c.phaseDuration,
		c.missing,
		c.activeWorkers,
	)
	return c
}

// RecordAssigned counts one assignment.
func (c *Collector) RecordAssigned(kind string) {
	c.itemsAssigned.WithLabelValues(kind).Inc()
}

// RecordPersisted counts one stored result and its latency.
func (c *Collector) RecordPersisted(kind string, latency time.Duration) {
	c.itemsPersisted.WithLabelValues(kind).Inc()
	c.itemLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordPhase counts one finished phase.
func (c *Collector) RecordPhase(kind string, d time.Duration) {
	c.phases.WithLabelValues(kind).Inc()
	c.phaseDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// SetActiveWorkers updates the active worker gauge.
func (c *Collector) SetActiveWorkers(n int) {
	c.activeWorkers.Set(float64(n))
}

// RecordMissing sets the missing-set gauge of family.
func (c *Collector) RecordMissing(family string, n int) {
	c.missing.WithLabelValues(family).Set(float64(n))
}

// RecordReconciled adds deleted partial rows of family.
func (c *Collector) RecordReconciled(family string, deleted int64) {
	c.reconciled.WithLabelValues(family).Add(float64(deleted))
}

// Serve exposes gatherer on addr under /metrics until ctx ends.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
