// Package metrics exposes Prometheus collectors for transfers and logical
// requests. All methods are safe on a nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gophshare"

const readHeaderTimeout = 10 * time.Second

type Metrics struct {
	registry *prometheus.Registry

	transfersStarted   *prometheus.CounterVec
	transfersCompleted *prometheus.CounterVec
	transferDuration   *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
	requestDuration    prometheus.Histogram
	requestsActive     prometheus.Gauge
	recoveredTotal     *prometheus.CounterVec
}

// New builds a Metrics instance with its own registry, including Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transfersStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_started_total",
			Help:      "Transfer tasks handed to a session",
		}, []string{"kind"}), // kind: file, post
		transfersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_completed_total",
			Help:      "Transfer tasks that reported a result",
		}, []string{"kind", "result"}), // result: success, failure
		transferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Time from task start to its completion callback",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Logical share requests by outcome",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of logical share requests",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		requestsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_active",
			Help:      "Logical requests not yet completed",
		}),
		recoveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_recovered_total",
			Help:      "Requests rebuilt from persisted state",
		}, []string{"how"}), // how: rehydrated, resumed, swept
	}

	m.registry.MustRegister(
		m.transfersStarted, m.transfersCompleted, m.transferDuration,
		m.requestsTotal, m.requestDuration, m.requestsActive, m.recoveredTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) TransferStarted(kind string) {
	if m == nil {
		return
	}
	m.transfersStarted.WithLabelValues(kind).Inc()
}

func (m *Metrics) TransferCompleted(kind string, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transfersCompleted.WithLabelValues(kind, result(ok)).Inc()
	if elapsed > 0 {
		m.transferDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.requestsActive.Inc()
}

func (m *Metrics) RequestCompleted(ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsActive.Dec()
	m.requestsTotal.WithLabelValues(result(ok)).Inc()
	m.requestDuration.Observe(elapsed.Seconds())
}

// RequestRecovered counts requests picked up from persisted state.
func (m *Metrics) RequestRecovered(how string) {
	if m == nil {
		return
	}
	m.recoveredTotal.WithLabelValues(how).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
