package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics tracks task consumption across the queue lanes.
type WorkerMetrics struct {
	registry *prometheus.Registry

	taskTotal    *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	taskInFlight prometheus.Gauge
	queueLag     *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	taskTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "titleworks",
			Subsystem: "worker",
			Name:      "task_total",
			Help:      "Total handled tasks by type and status.",
		},
		[]string{"service", "task_type", "status"},
	)
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "titleworks",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Task handler duration in seconds by type and status.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 120, 300, 600},
		},
		[]string{"service", "task_type", "status"},
	)
	taskInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "titleworks",
			Subsystem: "worker",
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "titleworks",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between task enqueue and handler start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "task_type"},
	)

	registry.MustRegister(taskTotal, taskDuration, taskInFlight, queueLag)

	return &WorkerMetrics{
		registry:     registry,
		taskTotal:    taskTotal,
		taskDuration: taskDuration,
		taskInFlight: taskInFlight,
		queueLag:     queueLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartTask() {
	m.taskInFlight.Inc()
}

func (m *WorkerMetrics) FinishTask(service, taskType string, duration time.Duration, err error) {
	m.taskInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.taskTotal.WithLabelValues(service, taskType, status).Inc()
	m.taskDuration.WithLabelValues(service, taskType, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service, taskType string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service, taskType).Observe(lag.Seconds())
}
