package node

import (
	"math"
	"time"

	"github.com/NethermindEth/katana-go/blockchain"
	"github.com/NethermindEth/katana-go/db"
	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/mempool"
	"github.com/NethermindEth/katana-go/messaging"
	"github.com/NethermindEth/katana-go/sequencer"
	"github.com/prometheus/client_golang/prometheus"
)

// makeDBMetrics observes the latencies the db reports in microseconds.
func makeDBMetrics() db.EventListener {
	latencyBuckets := []float64{
		25,
		50,
		75,
		100,
		250,
		500,
		1000, // 1ms
		2000,
		3000,
		4000,
		5000,
		10000,
		50000,
		500000,
		math.Inf(0),
	}
	readLatencyHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "db",
		Name:      "read_latency",
		Buckets:   latencyBuckets,
	})
	writeLatencyHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "db",
		Name:      "write_latency",
		Buckets:   latencyBuckets,
	})
	commitLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "db",
		Name:      "commit_latency",
		Buckets: []float64{
			5000,
			10000,
			20000,
			30000,
			40000,
			50000,
			100000, // 100ms
			200000,
			300000,
			500000,
			1000000,
			math.Inf(0),
		},
	})

	prometheus.MustRegister(readLatencyHistogram, writeLatencyHistogram, commitLatency)
	return &db.SelectiveListener{
		OnIOCb: func(write bool, duration float64) {
			if write {
				writeLatencyHistogram.Observe(duration * 1e6)
			} else {
				readLatencyHistogram.Observe(duration * 1e6)
			}
		},
		OnCommitCb: func(duration float64) {
			commitLatency.Observe(duration * 1e6)
		},
	}
}

func makeHTTPMetrics() jsonrpc.NewRequestListener {
	reqCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rpc",
		Subsystem: "http",
		Name:      "requests",
	})
	prometheus.MustRegister(reqCounter)

	return &jsonrpc.SelectiveListener{
		OnNewRequestCb: func(method string) {
			reqCounter.Inc()
		},
	}
}

func makeWSMetrics() jsonrpc.NewRequestListener {
	reqCounter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rpc",
		Subsystem: "ws",
		Name:      "requests",
	})
	prometheus.MustRegister(reqCounter)

	return &jsonrpc.SelectiveListener{
		OnNewRequestCb: func(method string) {
			reqCounter.Inc()
		},
	}
}

func makeRPCMetrics() jsonrpc.EventListener {
	listener := jsonrpc.NewMetricsListener()
	prometheus.MustRegister(listener)
	return listener
}

func makeKatanaMetrics(version string) {
	prometheus.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "katana",
		Name:        "info",
		Help:        "Information about the Katana binary",
		ConstLabels: prometheus.Labels{"version": version},
	}))
}

func makeBlockchainMetrics() blockchain.EventListener {
	reads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blockchain",
		Name:      "reads",
	}, []string{"method"})
	head := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "blockchain",
		Name:      "head",
		Help:      "Number of the last stored block",
	})
	storeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blockchain",
		Name:      "store_latency",
		Help:      "Time taken to commit a block, in milliseconds",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
	prometheus.MustRegister(reads, head, storeLatency, &blockchain.MetricsCollector{})

	return &blockchain.SelectiveListener{
		OnReadCb: func(method string) {
			reads.WithLabelValues(method).Inc()
		},
		OnStoredCb: func(number uint64, took time.Duration) {
			head.Set(float64(number))
			storeLatency.Observe(float64(took.Milliseconds()))
		},
	}
}

func makeSequencerMetrics(seq *sequencer.Sequencer, pool *mempool.Pool) {
	prometheus.MustRegister(seq, pool)
}

func makeMessagingMetrics() messaging.EventListener {
	messages := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "messages",
		Help:      "Messages submitted to the pool",
	})
	pollFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "poll_failures",
		Help:      "Failed polls of the settlement chain",
	})
	prometheus.MustRegister(messages, pollFailures)

	return &messaging.SelectiveListener{
		OnMessageCb: func() {
			messages.Inc()
		},
		OnPollFailedCb: func() {
			pollFailures.Inc()
		},
	}
}

func makeVMThrottlerMetrics(throttledVM *ThrottledVM) {
	vmJobs := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "vm",
		Name:      "jobs",
	}, func() float64 {
		return float64(throttledVM.JobsRunning())
	})
	vmQueue := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "vm",
		Name:      "queue",
	}, func() float64 {
		return float64(throttledVM.QueueLen())
	})
	prometheus.MustRegister(vmJobs, vmQueue)
}
