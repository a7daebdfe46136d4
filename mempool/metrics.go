package mempool

import "github.com/prometheus/client_golang/prometheus"

var (
	sizeDesc     = prometheus.NewDesc("mempool_size", "Transactions waiting in the pool, parked ones included", nil, nil)
	admittedDesc = prometheus.NewDesc("mempool_admitted_total", "Transactions admitted to the pool", nil, nil)
	rejectedDesc = prometheus.NewDesc("mempool_rejected_total", "Transactions rejected by the pool", nil, nil)
)

func (p *Pool) Describe(ch chan<- *prometheus.Desc) {
	ch <- sizeDesc
	ch <- admittedDesc
	ch <- rejectedDesc
}

func (p *Pool) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(sizeDesc, prometheus.GaugeValue, float64(p.Len()))
	ch <- prometheus.MustNewConstMetric(admittedDesc, prometheus.CounterValue, float64(p.admitted.Load()))
	ch <- prometheus.MustNewConstMetric(rejectedDesc, prometheus.CounterValue, float64(p.rejected.Load()))
}
