package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServerMetrics tracks the API surface plus the submission-side
// domain counters.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchSubmitsTotal *prometheus.CounterVec
	searchCancelsTotal *prometheus.CounterVec
	batchUploadsTotal  *prometheus.CounterVec
	batchRowsTotal     *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "titleworks",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "titleworks",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "titleworks",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchSubmitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "titleworks",
			Subsystem: "search",
			Name:      "submits_total",
			Help:      "Total accepted search submissions by priority.",
		},
		[]string{"service", "priority"},
	)
	searchCancelsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "titleworks",
			Subsystem: "search",
			Name:      "cancels_total",
			Help:      "Total accepted search cancellations.",
		},
		[]string{"service"},
	)
	batchUploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "titleworks",
			Subsystem: "batch",
			Name:      "uploads_total",
			Help:      "Total accepted batch uploads.",
		},
		[]string{"service"},
	)
	batchRowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "titleworks",
			Subsystem: "batch",
			Name:      "rows_total",
			Help:      "Total rows accepted across batch uploads.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchSubmitsTotal,
		searchCancelsTotal,
		batchUploadsTotal,
		batchRowsTotal,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		searchSubmitsTotal: searchSubmitsTotal,
		searchCancelsTotal: searchCancelsTotal,
		batchUploadsTotal:  batchUploadsTotal,
		batchRowsTotal:     batchRowsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &metricsRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses resource IDs so the path label stays bounded.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/searches/"):
		rest := strings.TrimPrefix(path, "/v1/searches/")
		if strings.HasSuffix(rest, "/cancel") {
			return "/v1/searches/{search_id}/cancel"
		}
		if strings.HasSuffix(rest, "/documents") {
			return "/v1/searches/{search_id}/documents"
		}
		return "/v1/searches/{search_id}"
	case strings.HasPrefix(path, "/v1/batches/"):
		if strings.HasSuffix(path, "/cancel") {
			return "/v1/batches/{batch_id}/cancel"
		}
		return "/v1/batches/{batch_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordSearchSubmit(service, priority string) {
	if priority == "" {
		priority = "normal"
	}
	m.searchSubmitsTotal.WithLabelValues(service, priority).Inc()
}

func (m *HTTPServerMetrics) RecordSearchCancel(service string) {
	m.searchCancelsTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordBatchUpload(service string, rows int) {
	m.batchUploadsTotal.WithLabelValues(service).Inc()
	if rows > 0 {
		m.batchRowsTotal.WithLabelValues(service).Add(float64(rows))
	}
}

type metricsRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *metricsRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *metricsRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *metricsRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *metricsRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
