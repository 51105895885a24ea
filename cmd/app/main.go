package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"execsim/internal/app"
	"execsim/internal/book"
	"execsim/internal/domain"
	"execsim/internal/event"
	"execsim/internal/infra/okx"
	"execsim/internal/perf"
	"execsim/internal/service"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 2. Pprof Server (for performance profiling)
	pprofAddr := cfg.Perf.PprofListenAddr
	if pprofAddr == "" {
		pprofAddr = "localhost:6060" // Localhost only for security
	}
	go func() {
		slog.Info("🕵️ Pprof server started", slog.String("addr", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Core Components
	model, err := bootstrap.BuildImpactModel()
	if err != nil {
		slog.Error("❌ Impact model init failed", slog.Any("error", err))
		os.Exit(1)
	}
	estimator, err := bootstrap.BuildEstimator()
	if err != nil {
		slog.Error("❌ Estimator init failed", slog.Any("error", err))
		os.Exit(1)
	}
	calc, err := bootstrap.BuildFeeCalculator()
	if err != nil {
		slog.Error("❌ Fee calculator init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 5. Book Manager + Feed Worker (The Hotpath Loop)
	event.Warmup()
	inbox := make(chan event.Event, 1000) // Buffered for feed bursts
	manager := book.NewManager(cfg.Feed.Symbol, bootstrap.Monitor, slog.Default())
	go manager.Run(ctx, inbox)
	slog.InfoContext(ctx, "✅ Book manager (Hotpath) started", slog.String("symbol", cfg.Feed.Symbol))

	if cfg.Feed.WSURL != "" {
		worker := okx.NewWorker(cfg.Feed.WSURL, cfg.Feed.Symbol, inbox, slog.Default())
		if err := worker.Connect(ctx); err != nil {
			slog.Error("Failed to connect feed", slog.Any("error", err))
		}
		defer worker.Disconnect()
		slog.InfoContext(ctx, "✅ Feed worker started", slog.String("url", cfg.Feed.WSURL))
	}

	// 6. Evaluator
	evaluator := service.NewEvaluator(
		manager, estimator, model, calc,
		cfg.Evaluator, bootstrap.Monitor, bootstrap.Storage, slog.Default())

	// 7. Background Monitoring
	go bootstrap.Monitor.RunMemorySampler(ctx, cfg.Perf.MemoryInterval)
	go flushMetrics(ctx, bootstrap, cfg.Perf.ExportInterval)
	go evaluateLoop(ctx, evaluator, manager)

	slog.InfoContext(ctx, "✨ ExecSim fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	if cfg.Perf.ReportOnShutdown {
		logReports(bootstrap.Monitor)
	}
	slog.Info("👋 Shutting down gracefully...")
}

// flushMetrics periodically persists buffered performance samples.
func flushMetrics(ctx context.Context, bootstrap *app.Bootstrap, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bootstrap.Storage.SaveMetrics(bootstrap.Monitor.Export()); err != nil {
				slog.Warn("Metric flush failed", slog.Any("error", err))
			}
		}
	}
}

// evaluateLoop runs a reference evaluation against the live book every few
// seconds so latency percentiles reflect end-to-end cost.
func evaluateLoop(ctx context.Context, evaluator *service.Evaluator, manager *book.Manager) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if manager.Sequence() == 0 {
				continue // no book yet
			}
			report, err := evaluator.EvaluateTrade(ctx, domain.TradeRequest{Side: domain.Buy, Size: 1})
			if err != nil {
				slog.Warn("Reference evaluation failed", slog.Any("error", err))
				continue
			}
			slog.Info("Reference evaluation",
				slog.String("id", report.ID),
				slog.Float64("slippage", report.Slippage.Value),
				slog.String("fee", report.Fee.String()),
				slog.Duration("elapsed", report.Elapsed))
		}
	}
}

func logReports(mon *perf.Monitor) {
	for _, kind := range []domain.MetricKind{domain.MetricProcessing, domain.MetricRender, domain.MetricMemory} {
		stats := mon.Report(kind)
		if stats.Count == 0 {
			continue
		}
		slog.Info("Performance report",
			slog.String("kind", string(kind)),
			slog.Int("count", stats.Count),
			slog.Float64("min", stats.Min),
			slog.Float64("max", stats.Max),
			slog.Float64("mean", stats.Mean),
			slog.Float64("p95", stats.P95),
			slog.Float64("p99", stats.P99))
	}
}
