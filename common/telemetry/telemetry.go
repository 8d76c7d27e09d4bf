package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/weeeopen/tarallo/common/logger"
)

// Telemetry holds observability components.
// A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	log       *logger.Logger
	pprofAddr string
	pprof     bool

	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// New creates telemetry components with a private Prometheus registry
func New(pprofPort int, enablePprof bool, log *logger.Logger) *Telemetry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	t := &Telemetry{
		log:       log,
		pprofAddr: fmt.Sprintf("localhost:%d", pprofPort),
		pprof:     enablePprof,
		registry:  reg,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tarallo",
			Name:      "operation_duration_seconds",
			Help:      "Duration of store, search and stats operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarallo",
			Name:      "operation_errors_total",
			Help:      "Failed operations by error kind.",
		}, []string{"operation", "kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarallo",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(t.duration, t.errors, t.requests)

	return t
}

// Start starts the pprof endpoint when enabled
func (t *Telemetry) Start(ctx context.Context) error {
	if t == nil || !t.pprof {
		return nil
	}

	srv := &http.Server{Addr: t.pprofAddr, Handler: http.DefaultServeMux}
	go func() {
		t.log.Info("pprof server starting", "addr", t.pprofAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("pprof server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	return nil
}

// Handler serves the Prometheus exposition format
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	if t == nil {
		return
	}
	duration := time.Since(start)
	t.duration.WithLabelValues(operation).Observe(duration.Seconds())
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}

// RecordError counts a failed operation under the error's kind
func (t *Telemetry) RecordError(operation, kind string) {
	if t == nil {
		return
	}
	t.errors.WithLabelValues(operation, kind).Inc()
}

// RecordRequest counts a served HTTP request
func (t *Telemetry) RecordRequest(method, route string, status int) {
	if t == nil {
		return
	}
	t.requests.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Inc()
}
