// Command spacekitd runs the sequencer node: it loads configuration and
// genesis, opens the state and block stores, builds the execution engine,
// and seals blocks on the configured interval until signalled to stop.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spacekit/config"
	"spacekit/core"
	"spacekit/core/genesis"
	"spacekit/crypto"
	"spacekit/observability/logging"
	"spacekit/observability/metrics"
	"spacekit/runtime"
	"spacekit/storage"
	"spacekit/storage/blockstore"
	"spacekit/verkle"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "spacekitd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup("spacekitd", cfg.NetworkName, logging.Options{
		File:  cfg.LogFile,
		Level: parseLevel(cfg.LogLevel),
	})

	gen, err := genesis.Load(cfg.GenesisFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}
	stateDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return err
	}
	defer stateDB.Close()
	archive, err := blockstore.Open(filepath.Join(cfg.DataDir, "blocks.db"))
	if err != nil {
		return err
	}
	defer archive.Close()

	verifier := crypto.NewVerifier(crypto.VerifierConfig{
		AllowUnverifiedQuantum: cfg.AllowUnverifiedQuantum,
		Logger:                 logger,
	})
	if cfg.AllowUnverifiedQuantum {
		logger.Warn("post-quantum signatures will pass unverified; never enable this outside development")
	}

	engine, err := core.NewEngine(core.Config{
		Genesis:  gen,
		State:    verkle.NewManager(stateDB),
		Runtime:  runtime.Unavailable{},
		Verifier: verifier,
		Archive:  archive,
		Fees: core.FeePolicy{
			BaseFee:    uint256.NewInt(cfg.BaseFee),
			PerByteFee: uint256.NewInt(cfg.PerByteFee),
		},
		Gas: core.GasPolicy{
			GasPerByte: cfg.GasPerByte,
			GasLimit:   cfg.GasLimit,
		},
		MaxTxPerBlock: cfg.MaxTxPerBlock,
		MemoryWindow:  cfg.MemoryBlockWindow,
		Logger:        logger,
		Metrics:       metrics.EngineMetrics(),
	})
	if err != nil {
		return err
	}

	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		logger.Info("serving metrics", "address", cfg.MetricsAddress)
	}

	var miner *core.Miner
	if cfg.AutoMine {
		miner = core.NewMiner(engine, time.Duration(cfg.AutoMineIntervalMs)*time.Millisecond, logger)
		miner.Start()
		logger.Info("auto-miner started", "intervalMs", cfg.AutoMineIntervalMs)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	if miner != nil {
		miner.Stop()
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
