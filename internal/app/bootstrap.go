// Package app wires configuration, logging, storage and monitoring into a
// ready-to-run system.
package app

import (
	"fmt"
	"log/slog"

	"execsim/internal/fees"
	"execsim/internal/impact"
	"execsim/internal/infra"
	"execsim/internal/infra/storage"
	"execsim/internal/perf"
	"execsim/internal/slippage"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Monitor *perf.Monitor
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB, monitor)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping ExecSim...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	// 4. Performance Monitor
	b.Monitor = perf.NewMonitor(cfg.Perf.Capacity)
	slog.Info("✅ Performance monitor ready")

	return nil
}

// BuildImpactModel constructs the Almgren-Chriss model from config.
func (b *Bootstrap) BuildImpactModel() (*impact.Model, error) {
	model, err := impact.New(b.Config.Impact)
	if err != nil {
		return nil, fmt.Errorf("impact model: %w", err)
	}
	return model, nil
}

// BuildEstimator constructs the configured slippage variant, loading a
// pre-trained artifact when one is configured.
func (b *Bootstrap) BuildEstimator() (slippage.Estimator, error) {
	est, err := slippage.Create(b.Config.Slippage.Kind, b.Config.Slippage.Options)
	if err != nil {
		return nil, fmt.Errorf("slippage estimator: %w", err)
	}
	if path := b.Config.Slippage.ArtifactPath; path != "" {
		loader, ok := est.(interface{ LoadArtifact(string) error })
		if !ok {
			return nil, fmt.Errorf("estimator %q does not load artifacts", b.Config.Slippage.Kind)
		}
		if err := loader.LoadArtifact(path); err != nil {
			return nil, fmt.Errorf("load artifact %s: %w", path, err)
		}
		slog.Info("✅ Model artifact loaded", slog.String("path", path))
	}
	return est, nil
}

// BuildFeeCalculator constructs the fee calculator from config.
func (b *Bootstrap) BuildFeeCalculator() (*fees.Calculator, error) {
	schedule := b.Config.Fees.Schedule
	if b.Config.Fees.UseDefaults {
		schedule = fees.DefaultSchedule()
	}
	calc, err := fees.NewCalculator(schedule)
	if err != nil {
		return nil, fmt.Errorf("fee calculator: %w", err)
	}
	return calc, nil
}
