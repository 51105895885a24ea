// Package storage persists metric samples and evaluation history to SQLite.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"execsim/internal/domain"
	"execsim/internal/perf"
)

// MetricRow is one exported performance sample.
type MetricRow struct {
	ID        uint      `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index"`
	Kind      string    `gorm:"index"`
	Value     float64
	Metadata  string
}

// EvalRecord is one persisted trade evaluation.
type EvalRecord struct {
	ID              string    `gorm:"primaryKey"`
	Symbol          string    `gorm:"index"`
	Side            string
	Size            float64
	Price           float64
	Slippage        float64
	SlippageModel   string
	Fallback        bool
	TemporaryImpact float64
	PermanentImpact float64
	Notional        string // decimal string, exact
	Fee             string // decimal string, exact
	EvaluatedAt     time.Time `gorm:"index"`
	ElapsedMicros   int64
}

// Storage wraps the SQLite connection.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the database. An empty path selects the
// OS-specific config directory default.
func NewStorage(path string) (*Storage, error) {
	dbPath := path
	if dbPath == "" {
		var err error
		if dbPath, err = getDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&MetricRow{}, &EvalRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "ExecSim", "data", "execsim.db"), nil
}

// SaveMetrics writes a batch of exported samples in one transaction.
func (s *Storage) SaveMetrics(rows []perf.Row) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]MetricRow, len(rows))
	for i, r := range rows {
		records[i] = MetricRow{
			Timestamp: r.Timestamp,
			Kind:      string(r.Kind),
			Value:     r.Value,
			Metadata:  r.Metadata,
		}
	}
	return s.db.CreateInBatches(records, 500).Error
}

// SaveEvaluation persists one execution report.
func (s *Storage) SaveEvaluation(report *domain.ExecutionReport) error {
	rec := EvalRecord{
		ID:              report.ID,
		Symbol:          report.Symbol,
		Side:            report.Request.Side.String(),
		Size:            report.Request.Size,
		Price:           report.Request.CurrentPrice,
		Slippage:        report.Slippage.Value,
		SlippageModel:   report.Slippage.ModelUsed,
		Fallback:        report.Slippage.FallbackTriggered,
		TemporaryImpact: report.TemporaryImpact,
		PermanentImpact: report.PermanentImpact,
		Notional:        report.Notional.String(),
		Fee:             report.Fee.String(),
		EvaluatedAt:     report.EvaluatedAt,
		ElapsedMicros:   report.Elapsed.Microseconds(),
	}
	return s.db.Save(&rec).Error
}

// RecentEvaluations returns the latest n evaluations, newest first.
func (s *Storage) RecentEvaluations(n int) ([]EvalRecord, error) {
	var recs []EvalRecord
	err := s.db.Order("evaluated_at DESC").Limit(n).Find(&recs).Error
	return recs, err
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
