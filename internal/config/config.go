// Package config provides configuration loading for memctxd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. Every orchestration tunable (strategy budgets, health
// thresholds, cache sizing, quality weights) lives here; strategies are
// validated at load time so a malformed budget fails fast at startup.
package config

import (
	"fmt"
	"time"

	"github.com/Big0290/memory-context-manager-v2/internal/strategy"
)

// Config holds the complete memctxd configuration.
type Config struct {
	Server        ServerConfig              `koanf:"server"`
	Logging       LoggingConfig             `koanf:"logging"`
	Observability ObservabilityConfig       `koanf:"observability"`
	Strategy      map[string]StrategyConfig `koanf:"strategy"`
	Health        HealthConfig              `koanf:"health"`
	Cache         CacheConfig               `koanf:"cache"`
	Integration   IntegrationConfig         `koanf:"integration"`
	Sources       SourcesConfig             `koanf:"sources"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	Enabled        bool   `koanf:"enable_telemetry"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	Endpoint       string `koanf:"endpoint"`
	Protocol       string `koanf:"protocol"`
	Insecure       bool   `koanf:"insecure"`
}

// StrategyConfig overrides one orchestration strategy's tunables.
type StrategyConfig struct {
	TimeBudget           Duration `koanf:"time_budget"`
	TargetAccuracy       float64  `koanf:"target_accuracy"`
	MaxSources           int      `koanf:"max_sources"`
	MinSourcesForSuccess int      `koanf:"min_sources_for_success"`
}

// HealthConfig holds source health-tracking tunables.
type HealthConfig struct {
	Alpha                   float64  `koanf:"alpha"`
	WarnThreshold           float64  `koanf:"warn_threshold"`
	FailThreshold           float64  `koanf:"fail_threshold"`
	ConsecutiveFailureLimit int      `koanf:"consecutive_failure_limit"`
	RecoveryCooldown        Duration `koanf:"recovery_cooldown"`
	ReevalInterval          Duration `koanf:"reeval_interval"`
}

// CacheConfig holds response cache tunables.
type CacheConfig struct {
	MaxEntries    int                 `koanf:"max_entries"`
	TTL           map[string]Duration `koanf:"ttl"`
	DegradedTTL   Duration            `koanf:"degraded_ttl"`
	Bucket        Duration            `koanf:"bucket"`
	SweepInterval Duration            `koanf:"sweep_interval"`
}

// IntegrationConfig holds quality-scoring tunables.
type IntegrationConfig struct {
	Weights           WeightsConfig `koanf:"weights"`
	FreshnessHalfLife Duration      `koanf:"freshness_half_life"`
	DefaultConfidence float64       `koanf:"default_confidence"`
}

// WeightsConfig holds the fixed quality-score weights.
type WeightsConfig struct {
	Relevance  float64 `koanf:"relevance"`
	Confidence float64 `koanf:"confidence"`
	Freshness  float64 `koanf:"freshness"`
}

// SourcesConfig configures the built-in source adapters.
type SourcesConfig struct {
	Project   ProjectSourceConfig   `koanf:"project"`
	Memory    MemorySourceConfig    `koanf:"memory"`
	Knowledge KnowledgeSourceConfig `koanf:"knowledge"`
}

// ProjectSourceConfig configures the git-backed project source.
type ProjectSourceConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	Priority   int    `koanf:"priority"`
	MaxCommits int    `koanf:"max_commits"`
}

// MemorySourceConfig configures the embedded vector memory source.
type MemorySourceConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Priority   int    `koanf:"priority"`
	MaxResults int    `koanf:"max_results"`
}

// KnowledgeSourceConfig configures the local knowledge-base source.
type KnowledgeSourceConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Path     string `koanf:"path"`
	Priority int    `koanf:"priority"`
}

// Strategies converts the strategy section into the validated strategy set,
// starting from the built-in defaults and applying overrides by name.
// Unknown strategy names are a configuration error.
func (c *Config) Strategies() ([]strategy.Strategy, error) {
	defaults := strategy.Defaults()
	byName := make(map[string]int, len(defaults))
	for i, st := range defaults {
		byName[st.Name] = i
	}

	for name, override := range c.Strategy {
		i, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q in config", strategy.ErrUnknownStrategy, name)
		}
		st := defaults[i]
		if override.TimeBudget > 0 {
			st.TimeBudget = override.TimeBudget.Duration()
		}
		if override.TargetAccuracy > 0 {
			st.TargetAccuracy = override.TargetAccuracy
		}
		if override.MaxSources > 0 {
			st.MaxSources = override.MaxSources
		}
		if override.MinSourcesForSuccess > 0 {
			st.MinSourcesForSuccess = override.MinSourcesForSuccess
		}
		defaults[i] = st
	}

	for _, st := range defaults {
		if err := st.Validate(); err != nil {
			return nil, err
		}
	}
	return defaults, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server http_port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Observability.Enabled && c.Observability.ServiceName == "" {
		return fmt.Errorf("observability service_name is required when telemetry is enabled")
	}
	if _, err := c.Strategies(); err != nil {
		return err
	}
	if c.Health.Alpha <= 0 || c.Health.Alpha > 1 {
		return fmt.Errorf("health alpha must be in (0,1]")
	}
	if c.Health.WarnThreshold <= c.Health.FailThreshold {
		return fmt.Errorf("health warn_threshold must be above fail_threshold")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be > 0")
	}
	w := c.Integration.Weights
	if w.Relevance < 0 || w.Confidence < 0 || w.Freshness < 0 || w.Relevance+w.Confidence+w.Freshness <= 0 {
		return fmt.Errorf("integration weights must be non-negative and not all zero")
	}
	if c.Integration.DefaultConfidence < 0 || c.Integration.DefaultConfidence > 1 {
		return fmt.Errorf("integration default_confidence must be in [0,1]")
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9291
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "memctxd"
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = "dev"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}

	if cfg.Health.Alpha == 0 {
		cfg.Health.Alpha = 0.3
	}
	if cfg.Health.WarnThreshold == 0 {
		cfg.Health.WarnThreshold = 0.5
	}
	if cfg.Health.FailThreshold == 0 {
		cfg.Health.FailThreshold = 0.2
	}
	if cfg.Health.ConsecutiveFailureLimit == 0 {
		cfg.Health.ConsecutiveFailureLimit = 5
	}
	if cfg.Health.RecoveryCooldown == 0 {
		cfg.Health.RecoveryCooldown = Duration(30 * time.Second)
	}
	if cfg.Health.ReevalInterval == 0 {
		cfg.Health.ReevalInterval = Duration(30 * time.Second)
	}

	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 512
	}
	if cfg.Cache.DegradedTTL == 0 {
		cfg.Cache.DegradedTTL = Duration(15 * time.Second)
	}
	if cfg.Cache.Bucket == 0 {
		cfg.Cache.Bucket = Duration(5 * time.Minute)
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = Duration(time.Minute)
	}
	if cfg.Cache.TTL == nil {
		cfg.Cache.TTL = map[string]Duration{
			strategy.Immediate:     Duration(30 * time.Second),
			strategy.Predictive:    Duration(time.Minute),
			strategy.Comprehensive: Duration(5 * time.Minute),
		}
	}

	if cfg.Integration.Weights == (WeightsConfig{}) {
		cfg.Integration.Weights = WeightsConfig{Relevance: 0.4, Confidence: 0.3, Freshness: 0.3}
	}
	if cfg.Integration.FreshnessHalfLife == 0 {
		cfg.Integration.FreshnessHalfLife = Duration(10 * time.Minute)
	}
	if cfg.Integration.DefaultConfidence == 0 {
		cfg.Integration.DefaultConfidence = 0.5
	}

	if cfg.Sources.Project.MaxCommits == 0 {
		cfg.Sources.Project.MaxCommits = 10
	}
	if cfg.Sources.Project.Priority == 0 {
		cfg.Sources.Project.Priority = 8
	}
	if cfg.Sources.Memory.Priority == 0 {
		cfg.Sources.Memory.Priority = 6
	}
	if cfg.Sources.Memory.Collection == "" {
		cfg.Sources.Memory.Collection = "memctxd_memories"
	}
	if cfg.Sources.Memory.MaxResults == 0 {
		cfg.Sources.Memory.MaxResults = 5
	}
	if cfg.Sources.Knowledge.Priority == 0 {
		cfg.Sources.Knowledge.Priority = 4
	}
}
