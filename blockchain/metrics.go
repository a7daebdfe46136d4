package blockchain

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	allStore     uint64
	allStoreTime int64
)

func recordStore(d time.Duration) {
	atomic.AddUint64(&allStore, 1)
	atomic.AddInt64(&allStoreTime, d.Nanoseconds())
}

var (
	storeDesc     = prometheus.NewDesc("blockchain_store_total", "Blocks stored", nil, nil)
	storeTimeDesc = prometheus.NewDesc("blockchain_store_time_ns_total", "Total time spent storing blocks (ns)", nil, nil)
)

// MetricsCollector exposes the store counters of every Blockchain in the process.
type MetricsCollector struct{}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- storeDesc
	ch <- storeTimeDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(storeDesc, prometheus.CounterValue, float64(atomic.LoadUint64(&allStore)))
	ch <- prometheus.MustNewConstMetric(storeTimeDesc, prometheus.CounterValue,
		float64(atomic.LoadInt64(&allStoreTime)))
}
