// Package metrics exposes Prometheus instrumentation for the execution
// engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine groups the engine-level collectors.
type Engine struct {
	BlocksSealed     prometheus.Counter
	TxExecuted       *prometheus.CounterVec
	PendingPoolDepth prometheus.Gauge
	SealDuration     prometheus.Histogram
	GasUsed          prometheus.Counter
}

var (
	engineOnce     sync.Once
	engineRegistry *Engine
)

// EngineMetrics returns the lazily-initialised engine metrics registry.
// Collectors are registered with the default Prometheus registry exactly
// once.
func EngineMetrics() *Engine {
	engineOnce.Do(func() {
		engineRegistry = &Engine{
			BlocksSealed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "spacekit",
				Subsystem: "engine",
				Name:      "blocks_sealed_total",
				Help:      "Total blocks sealed by the engine.",
			}),
			TxExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "spacekit",
				Subsystem: "engine",
				Name:      "transactions_executed_total",
				Help:      "Total transactions executed, segmented by outcome.",
			}, []string{"outcome"}),
			PendingPoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "spacekit",
				Subsystem: "engine",
				Name:      "pending_pool_depth",
				Help:      "Transactions waiting in the pending pool.",
			}),
			SealDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "spacekit",
				Subsystem: "engine",
				Name:      "block_seal_duration_seconds",
				Help:      "Latency distribution for block sealing.",
				Buckets:   prometheus.DefBuckets,
			}),
			GasUsed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "spacekit",
				Subsystem: "engine",
				Name:      "gas_used_total",
				Help:      "Cumulative gas consumed by executed transactions.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.BlocksSealed,
			engineRegistry.TxExecuted,
			engineRegistry.PendingPoolDepth,
			engineRegistry.SealDuration,
			engineRegistry.GasUsed,
		)
	})
	return engineRegistry
}
