package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// Metrics regroupe les collecteurs Prometheus du service.
// Le registre est injecté pour que les tests puissent en créer un neuf.
type Metrics struct {
	followOps    *prometheus.CounterVec
	blockOps     *prometheus.CounterVec
	httpTotal    *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

var _ ports.OperationRecorder = (*Metrics)(nil)

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		followOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "follow_operations_total",
			Help: "Total number of follow/unfollow operations",
		}, []string{"operation", "status"}),
		blockOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "block_operations_total",
			Help: "Total number of block/unblock operations",
		}, []string{"operation", "status"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.1, 0.3, 0.5, 0.7, 1, 3, 5, 7, 10},
		}, []string{"method", "route", "status_code"}),
	}

	reg.MustRegister(
		m.followOps,
		m.blockOps,
		m.httpTotal,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) RecordFollowOperation(operation, status string) {
	m.followOps.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) RecordBlockOperation(operation, status string) {
	m.blockOps.WithLabelValues(operation, status).Inc()
}

// ObserveHTTP enregistre une requête terminée
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.httpTotal.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}
