// Package main runs the options engine: a paper-traded, regime-driven
// strategy selector with risk gating, position tracking and an HTTP/WS
// control surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantedge/options-engine/internal/api"
	"github.com/quantedge/options-engine/internal/attribution"
	"github.com/quantedge/options-engine/internal/broker"
	"github.com/quantedge/options-engine/internal/config"
	"github.com/quantedge/options-engine/internal/engine"
	"github.com/quantedge/options-engine/internal/events"
	"github.com/quantedge/options-engine/internal/marketdata"
	"github.com/quantedge/options-engine/internal/notify"
	"github.com/quantedge/options-engine/internal/persist"
	"github.com/quantedge/options-engine/internal/position"
	"github.com/quantedge/options-engine/internal/regime"
	"github.com/quantedge/options-engine/internal/risk"
	"github.com/quantedge/options-engine/internal/strategy"
	"github.com/quantedge/options-engine/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// instruments holds the contract specs of the supported underlyings.
var instruments = map[string]types.Instrument{
	"NIFTY":     {Symbol: "NIFTY", LotSize: 50, StrikeInterval: decimal.NewFromInt(50)},
	"BANKNIFTY": {Symbol: "BANKNIFTY", LotSize: 25, StrikeInterval: decimal.NewFromInt(100)},
}

func main() {
	configPath := flag.String("config", "", "Config file path (YAML); env and defaults apply underneath")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	logger.Info("starting options engine",
		zap.Strings("symbols", cfg.Engine.Symbols),
		zap.Duration("cycleInterval", cfg.CycleInterval()),
		zap.String("persistBackend", cfg.Persist.Backend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Market: paper broker with a seeded simulated market.
	builder := marketdata.NewBuilder(logger, cfg.MarketDataConfig())
	paper := broker.NewPaper(logger, cfg.PaperConfig(), builder)

	// One classifier per underlying so regime history stays per symbol.
	engineConfig := engine.DefaultConfig()
	engineConfig.Instruments = make(map[string]types.Instrument, len(cfg.Engine.Symbols))
	engineConfig.FlattenOnStop = cfg.Engine.FlattenOnStop
	classifiers := make(map[string]*regime.Classifier, len(cfg.Engine.Symbols))
	for _, symbol := range cfg.Engine.Symbols {
		inst, ok := instruments[symbol]
		if !ok {
			logger.Fatal("unknown symbol in config", zap.String("symbol", symbol))
		}
		engineConfig.Instruments[symbol] = inst
		classifiers[symbol] = regime.NewClassifier(logger, cfg.RegimeConfig())
	}

	catalog := strategy.NewCatalog()
	feedback := strategy.NewFeedback(cfg.Risk.KellyWindow)
	tracker := position.NewTracker(logger, cfg.PositionConfig())
	riskMgr := risk.NewManager(logger, cfg.RiskConfig())
	attributor := attribution.NewAttributor(logger)
	bus := events.NewBus(logger)

	store := setupStore(ctx, logger, cfg)
	defer store.Close()

	notifier := setupNotifier(logger, cfg)

	eng := engine.New(logger, engineConfig, engine.Deps{
		Market:      paper,
		Executor:    paper,
		Classifiers: classifiers,
		Catalog:     catalog,
		Selector:    strategy.NewSelector(logger, catalog, feedback),
		Feedback:    feedback,
		Risk:        riskMgr,
		Tracker:     tracker,
		Attributor:  attributor,
		Store:       store,
		Notifier:    notifier,
		Bus:         bus,
	})

	apiConfig := api.DefaultConfig()
	apiConfig.Host = cfg.Server.Host
	apiConfig.Port = cfg.Server.Port
	server := api.NewServer(logger, apiConfig, eng, tracker, riskMgr, attributor, bus)

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("API server error", zap.Error(err))
		}
	}()

	go runCycles(ctx, logger, eng, paper, cfg.CycleInterval())

	logger.Info("engine running",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port)))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("engine stopped")
}

// runCycles drives the evaluation loop: advance the simulated market one
// bar, then run a cycle. A halted engine ends the loop; the process keeps
// serving the API so the operator can inspect state.
func runCycles(ctx context.Context, logger *zap.Logger, eng *engine.Engine, paper *broker.Paper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		paper.Advance()
		if err := eng.RunCycle(ctx); err != nil {
			logger.Error("engine halted", zap.Error(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// setupStore picks the persistence backend from config.
func setupStore(ctx context.Context, logger *zap.Logger, cfg *config.Config) persist.Store {
	switch cfg.Persist.Backend {
	case "jsonl":
		store, err := persist.NewFileStore(logger, cfg.Persist.Dir)
		if err != nil {
			logger.Fatal("journal init failed", zap.Error(err))
		}
		return store
	case "postgres":
		store, err := persist.NewPostgres(ctx, logger, cfg.Persist.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		return store
	default:
		return persist.Nop{}
	}
}

// setupNotifier always logs; Telegram joins the fanout when configured.
func setupNotifier(logger *zap.Logger, cfg *config.Config) notify.Notifier {
	notifiers := notify.Fanout{notify.NewLog(logger)}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(logger, cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("telegram notifier unavailable", zap.Error(err))
		} else {
			notifiers = append(notifiers, tg)
			logger.Info("telegram notifications enabled")
		}
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return notifiers
}

func setupLogger(level string, development bool) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: development,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
