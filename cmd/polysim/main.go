package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polysim/config"
	"github.com/alejandrodnm/polysim/internal/adapters/bitquery"
	"github.com/alejandrodnm/polysim/internal/adapters/export"
	"github.com/alejandrodnm/polysim/internal/adapters/notify"
	"github.com/alejandrodnm/polysim/internal/adapters/oracle"
	"github.com/alejandrodnm/polysim/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysim/internal/adapters/replay"
	"github.com/alejandrodnm/polysim/internal/engine"
	"github.com/alejandrodnm/polysim/internal/ledger"
	"github.com/alejandrodnm/polysim/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one trading cycle and exit")
	dryRun := flag.Bool("dry-run", false, "use synthetic feed and heuristic decisions instead of real APIs")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print stored PnL history and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole()

	if *report {
		runReport(ctx, cfg, console)
		return
	}

	if !*dryRun && cfg.API.OpenAIAPIKey == "" {
		slog.Error("OPENAI_API_KEY is required to run the simulation (or use -dry-run)")
		os.Exit(1)
	}

	slog.Info("polysim starting",
		"config", *configPath,
		"cycle_interval", cfg.CycleInterval(),
		"export", cfg.Export.Format,
		"dry_run", *dryRun,
		"once", *once,
	)

	sink, err := openSink(cfg)
	if err != nil {
		slog.Error("failed to open export sink", "err", err)
		os.Exit(1)
	}
	defer sink.Close()

	var (
		ticks    ports.MarketDataProvider
		liq      ports.LiquidityProvider
		proposer ports.ActionProposer
	)
	if *dryRun {
		ticks = replay.NewFeed(time.Now().UnixNano())
		proposer = replay.NewOracle()
	} else {
		ticks = polymarket.NewClient(cfg.API.DataBase)
		proposer = oracle.NewClient(cfg.API.OpenAIBase, cfg.API.OpenAIAPIKey, cfg.API.OpenAIModel)
		if cfg.API.BitqueryAPIKey != "" {
			liq = bitquery.NewClient(cfg.API.BitqueryBase, cfg.API.BitqueryAPIKey)
		} else {
			slog.Warn("BITQUERY_API_KEY not set, running without liquidity feed")
		}
	}

	led := ledger.New(cfg.RiskLimits(), sink)

	eng := engine.New(engine.Config{
		CycleInterval:  cfg.CycleInterval(),
		ReportInterval: cfg.ReportInterval(),
		FetchTimeout:   cfg.FetchTimeout(),
		OracleTimeout:  cfg.OracleTimeout(),
		Once:           *once,
	}, ticks, liq, proposer, led, sink, console)

	if err := eng.Run(ctx); err != nil {
		slog.Error("simulation exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polysim stopped cleanly")
}

// openSink selects the export backend from config.
func openSink(cfg *config.Config) (ports.RecordSink, error) {
	if cfg.Export.Format == "xlsx" {
		return export.NewXLSXSink(cfg.Export.Dir)
	}
	return export.NewSQLiteSink(cfg.Export.DSN)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
