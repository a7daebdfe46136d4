package jsonrpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var _ EventListener = (*MetricsListener)(nil)

// MetricsListener counts requests per method and records their latency.
type MetricsListener struct {
	requests *prometheus.CounterVec
	failed   *prometheus.CounterVec
	timeouts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func NewMetricsListener() *MetricsListener {
	return &MetricsListener{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpc",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Total number of rpc requests processed",
		}, []string{"method"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpc",
			Subsystem: "server",
			Name:      "failed_requests_total",
			Help:      "Total number of failed rpc requests",
		}, []string{"method"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpc",
			Subsystem: "server",
			Name:      "timed_out_requests_total",
			Help:      "Total number of rpc requests cut off by the request timeout",
		}, []string{"method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rpc",
			Subsystem: "server",
			Name:      "response_time_seconds",
			Help:      "Duration of rpc requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (l *MetricsListener) OnNewRequest(method string) {
	l.requests.WithLabelValues(method).Inc()
}

func (l *MetricsListener) OnRequestHandled(method string, took time.Duration) {
	l.latency.WithLabelValues(method).Observe(took.Seconds())
}

func (l *MetricsListener) OnRequestFailed(method string, _ any) {
	l.failed.WithLabelValues(method).Inc()
}

func (l *MetricsListener) OnRequestTimedOut(method string) {
	l.timeouts.WithLabelValues(method).Inc()
}

func (l *MetricsListener) Describe(ch chan<- *prometheus.Desc) {
	l.requests.Describe(ch)
	l.failed.Describe(ch)
	l.timeouts.Describe(ch)
	l.latency.Describe(ch)
}

func (l *MetricsListener) Collect(ch chan<- prometheus.Metric) {
	l.requests.Collect(ch)
	l.failed.Collect(ch)
	l.timeouts.Collect(ch)
	l.latency.Collect(ch)
}
