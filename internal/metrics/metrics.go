// Package metrics exposes Prometheus counters for print bookkeeping and HTTP
// request timings.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filaprint"

// Recorder holds the application collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	jobsRecorded    *prometheus.CounterVec
	deductions      prometheus.Counter
	deductedGrams   prometheus.Counter
	modelUploads    prometheus.Counter
	modelBytes      prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: reg,
		jobsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "print_jobs_recorded_total",
			Help:      "Print jobs written, by operation and status.",
		}, []string{"operation", "status"}),
		deductions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spool_deductions_total",
			Help:      "Times filament was taken off a spool.",
		}),
		deductedGrams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spool_deducted_grams_total",
			Help:      "Grams of filament requested from spools.",
		}),
		modelUploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_uploads_total",
			Help:      "Model files stored.",
		}),
		modelBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_upload_bytes_total",
			Help:      "Bytes of model files stored.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(r.jobsRecorded, r.deductions, r.deductedGrams, r.modelUploads, r.modelBytes, r.requestDuration)
	return r
}

func (r *Recorder) JobRecorded(operation, status string) {
	if r == nil {
		return
	}
	r.jobsRecorded.WithLabelValues(operation, status).Inc()
}

func (r *Recorder) Deducted(grams float64) {
	if r == nil {
		return
	}
	r.deductions.Inc()
	if grams > 0 {
		r.deductedGrams.Add(grams)
	}
}

func (r *Recorder) ModelUploaded(bytes int64) {
	if r == nil {
		return
	}
	r.modelUploads.Inc()
	if bytes > 0 {
		r.modelBytes.Add(float64(bytes))
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware observes request latency labelled by chi route pattern, so
// "/prints/7" and "/prints/8" share a series.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)

		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requestDuration.
			WithLabelValues(req.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
