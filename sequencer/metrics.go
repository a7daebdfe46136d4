package sequencer

import (
	"sync/atomic"
	"time"

	"github.com/NethermindEth/katana-go/core"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	blocksDesc  = prometheus.NewDesc("sequencer_blocks_total", "Blocks sealed by the sequencer", nil, nil)
	txsDesc     = prometheus.NewDesc("sequencer_transactions_total", "Transactions included in sealed blocks", nil, nil)
	droppedDesc = prometheus.NewDesc("sequencer_dropped_total", "Transactions dropped because they could not be executed", nil, nil)
	sealDesc    = prometheus.NewDesc("sequencer_last_seal_seconds", "Time it took to seal the last block", nil, nil)
	heightDesc  = prometheus.NewDesc("sequencer_pending_number", "Number of the pending block", nil, nil)
)

type metrics struct {
	blocks   atomic.Uint64
	txs      atomic.Uint64
	dropped  atomic.Uint64
	lastSeal atomic.Int64
}

func (m *metrics) record(block *core.Block, took time.Duration) {
	m.blocks.Add(1)
	m.txs.Add(uint64(len(block.Transactions)))
	m.lastSeal.Store(int64(took))
}

func (s *Sequencer) Describe(ch chan<- *prometheus.Desc) {
	ch <- blocksDesc
	ch <- txsDesc
	ch <- droppedDesc
	ch <- sealDesc
	ch <- heightDesc
}

func (s *Sequencer) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(blocksDesc, prometheus.CounterValue, float64(s.metrics.blocks.Load()))
	ch <- prometheus.MustNewConstMetric(txsDesc, prometheus.CounterValue, float64(s.metrics.txs.Load()))
	ch <- prometheus.MustNewConstMetric(droppedDesc, prometheus.CounterValue, float64(s.metrics.dropped.Load()))
	ch <- prometheus.MustNewConstMetric(sealDesc, prometheus.GaugeValue,
		time.Duration(s.metrics.lastSeal.Load()).Seconds())
	ch <- prometheus.MustNewConstMetric(heightDesc, prometheus.GaugeValue, float64(s.PendingEnv().Number))
}
