package core

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Miner seals blocks on a fixed interval. A tick that arrives while the
// previous seal is still running is skipped rather than queued.
type Miner struct {
	engine   *Engine
	interval time.Duration
	log      *slog.Logger

	sealing  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMiner builds an auto-miner for the engine. Interval must be positive.
func NewMiner(engine *Engine, interval time.Duration, logger *slog.Logger) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{
		engine:   engine,
		interval: interval,
		log:      logger.With("component", "miner"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the mining loop. Call Stop to shut it down.
func (m *Miner) Start() {
	go m.run()
}

func (m *Miner) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Miner) tick() {
	if !m.sealing.CompareAndSwap(false, true) {
		m.log.Debug("previous seal still running, skipping tick")
		return
	}
	defer m.sealing.Store(false)

	block, err := m.engine.MineBlock(context.Background())
	if err != nil {
		m.log.Error("seal failed", "error", err)
		return
	}
	if block == nil {
		return
	}
	m.log.Debug("sealed", "height", block.Height, "txs", len(block.Transactions))
}

// Stop terminates the loop and waits for an in-flight seal to finish.
// Idempotent.
func (m *Miner) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}
