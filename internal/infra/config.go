// Package infra holds the process-level plumbing: configuration loading,
// structured logging and metric export glue.
package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"execsim/internal/fees"
	"execsim/internal/impact"
	"execsim/internal/service"
	"execsim/internal/slippage"
)

// Config holds every runtime setting. Loaded from YAML, then overridden by
// EXECSIM_* environment variables, then validated as a whole.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		WSURL  string `yaml:"ws_url"`
		Symbol string `yaml:"symbol"`
	} `yaml:"feed"`

	Impact impact.Parameters `yaml:"impact"`

	Slippage struct {
		Kind         slippage.Kind    `yaml:"kind"`
		Options      slippage.Options `yaml:"options"`
		ArtifactPath string           `yaml:"artifact_path"` // optional pre-trained model
	} `yaml:"slippage"`

	Fees struct {
		UseDefaults bool          `yaml:"use_defaults"` // true = built-in schedule
		Schedule    fees.Schedule `yaml:"schedule"`
	} `yaml:"fees"`

	Evaluator service.EvaluatorOptions `yaml:"evaluator"`

	Perf struct {
		Capacity         int           `yaml:"capacity"`
		MemoryInterval   time.Duration `yaml:"memory_interval"`
		ExportInterval   time.Duration `yaml:"export_interval"`
		PprofListenAddr  string        `yaml:"pprof_listen_addr"`
		ReportOnShutdown bool          `yaml:"report_on_shutdown"`
	} `yaml:"perf"`

	Storage struct {
		Path string `yaml:"path"` // empty = OS config dir default
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads, overrides and validates the configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Feed.WSURL != "" &&
		!strings.HasPrefix(c.Feed.WSURL, "ws://") && !strings.HasPrefix(c.Feed.WSURL, "wss://") {
		return fmt.Errorf("invalid feed WS URL: %s", c.Feed.WSURL)
	}
	if c.Feed.Symbol == "" {
		return fmt.Errorf("feed symbol is required")
	}
	if err := c.Impact.Validate(); err != nil {
		return fmt.Errorf("impact: %w", err)
	}
	if c.Slippage.Kind == "" {
		c.Slippage.Kind = slippage.KindAuto
	}
	if c.Perf.Capacity < 0 {
		return fmt.Errorf("perf capacity must not be negative")
	}
	if c.Perf.MemoryInterval <= 0 {
		c.Perf.MemoryInterval = 5 * time.Second
	}
	if c.Perf.ExportInterval <= 0 {
		c.Perf.ExportInterval = time.Minute
	}
	return nil
}

// overrideWithEnv applies environment overrides for deploy-time settings.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("EXECSIM_FEED_WS_URL"); url != "" {
		cfg.Feed.WSURL = url
	}
	if sym := os.Getenv("EXECSIM_FEED_SYMBOL"); sym != "" {
		cfg.Feed.Symbol = sym
	}
	if path := os.Getenv("EXECSIM_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("EXECSIM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if path := os.Getenv("EXECSIM_ARTIFACT_PATH"); path != "" {
		cfg.Slippage.ArtifactPath = path
	}
}
