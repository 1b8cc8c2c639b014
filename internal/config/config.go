package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Worker   WorkerConfig   `yaml:"worker"`
	Detector DetectorConfig `yaml:"detector"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis configuration for throttle state and locks
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// WorkerConfig holds batch worker configuration
type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	NumWorkers          int `yaml:"num_workers"`
	MaxAttempts         int `yaml:"max_attempts"`
	LockTTLSeconds      int `yaml:"lock_ttl_seconds"`
	// Per-account external API quota per rolling hour; when exhausted the
	// account's jobs are deferred until throttle_until.
	AccountHourlyQuota int `yaml:"account_hourly_quota"`
}

// PollInterval returns the scheduler poll interval as a duration
func (c WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// LockTTL returns the account lock TTL as a duration
func (c WorkerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// DetectorConfig is the versioned anomaly detector configuration. A run's
// behavior must be fully reproducible from the config it was handed, so
// this is passed explicitly into pipeline runs rather than read from
// ambient state.
type DetectorConfig struct {
	Version string `yaml:"version"`

	CPRSpikeThreshold float64 `yaml:"cpr_spike_threshold"`
	CTRDropThreshold  float64 `yaml:"ctr_drop_threshold"`
	FreqHighThreshold float64 `yaml:"freq_high_threshold"`

	BaselineWindowWeeks int `yaml:"baseline_window_weeks"`
	MinBaselineWeeks    int `yaml:"min_baseline_weeks"`

	// Minimum result count per family before a row is scored at all.
	MinResults map[string]int64 `yaml:"min_results"`

	// Scoring weights; must sum to 1.0.
	WeightCPR  float64 `yaml:"weight_cpr"`
	WeightFreq float64 `yaml:"weight_freq"`
	WeightCTR  float64 `yaml:"weight_ctr"`
	WeightCPC  float64 `yaml:"weight_cpc"`
}

// MinResultsFor returns the configured minimum sample size for a family,
// falling back to the "clicks" floor for unknown families.
func (c DetectorConfig) MinResultsFor(family string) int64 {
	if n, ok := c.MinResults[family]; ok {
		return n
	}
	if n, ok := c.MinResults["clicks"]; ok {
		return n
	}
	return 1
}

// Validate checks invariants that would silently corrupt scoring.
func (c DetectorConfig) Validate() error {
	sum := c.WeightCPR + c.WeightFreq + c.WeightCTR + c.WeightCPC
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("detector weights must sum to 1.0, got %.3f", sum)
	}
	if c.CPRSpikeThreshold <= 1.0 {
		return fmt.Errorf("cpr_spike_threshold must be > 1.0, got %.2f", c.CPRSpikeThreshold)
	}
	if c.CTRDropThreshold <= 0 || c.CTRDropThreshold >= 1.0 {
		return fmt.Errorf("ctr_drop_threshold must be in (0,1), got %.2f", c.CTRDropThreshold)
	}
	if c.BaselineWindowWeeks < c.MinBaselineWeeks {
		return fmt.Errorf("baseline window (%d) shorter than minimum weeks (%d)",
			c.BaselineWindowWeeks, c.MinBaselineWeeks)
	}
	return nil
}

// AnalyzerConfig holds thresholds for the longitudinal analyzers.
type AnalyzerConfig struct {
	PeriodWeeks int `yaml:"period_weeks"`

	// Tracking health
	BrokenTrackingMinWeeks int     `yaml:"broken_tracking_min_weeks"`
	VolatilityCVThreshold  float64 `yaml:"volatility_cv_threshold"`

	// Creative fatigue
	FatigueFrequency  float64 `yaml:"fatigue_frequency"`
	FatigueCTRDecline float64 `yaml:"fatigue_ctr_decline"` // percent, negative

	// Response curve
	CurveBuckets     int     `yaml:"curve_buckets"`
	SaturationFactor float64 `yaml:"saturation_factor"` // marginal CPR vs sweet spot

	// Lag dependency learner
	LagBinEdges []float64 `yaml:"lag_bin_edges"` // delta-pct bin edges

	// Per-family target CPR for creative risk scoring; families without a
	// target fall back to the account median baseline CPR.
	TargetCPR map[string]float64 `yaml:"target_cpr"`
}

// DefaultDetectorConfig returns the global default detector configuration.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Version:             "v1",
		CPRSpikeThreshold:   1.20,
		CTRDropThreshold:    0.80,
		FreqHighThreshold:   1.50,
		BaselineWindowWeeks: 8,
		MinBaselineWeeks:    3,
		MinResults: map[string]int64{
			"messages":     5,
			"lead_form":    5,
			"website_lead": 5,
			"purchase":     3,
			"click":        50,
		},
		WeightCPR:  0.40,
		WeightFreq: 0.25,
		WeightCTR:  0.20,
		WeightCPC:  0.15,
	}
}

// DefaultAnalyzerConfig returns the global default analyzer configuration.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		PeriodWeeks:            12,
		BrokenTrackingMinWeeks: 2,
		VolatilityCVThreshold:  1.0,
		FatigueFrequency:       3.0,
		FatigueCTRDecline:      -20.0,
		CurveBuckets:           5,
		SaturationFactor:       1.2,
		LagBinEdges:            []float64{-50, -20, 0, 20, 50, 100},
	}
}

// Default returns a configuration with all defaults applied, as if an
// empty config file had been loaded.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Detector.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Worker.PollIntervalSeconds == 0 {
		cfg.Worker.PollIntervalSeconds = 30
	}
	if cfg.Worker.NumWorkers == 0 {
		cfg.Worker.NumWorkers = 4
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.LockTTLSeconds == 0 {
		cfg.Worker.LockTTLSeconds = 600
	}
	if cfg.Worker.AccountHourlyQuota == 0 {
		cfg.Worker.AccountHourlyQuota = 200
	}

	def := DefaultDetectorConfig()
	if cfg.Detector.Version == "" {
		cfg.Detector.Version = def.Version
	}
	if cfg.Detector.CPRSpikeThreshold == 0 {
		cfg.Detector.CPRSpikeThreshold = def.CPRSpikeThreshold
	}
	if cfg.Detector.CTRDropThreshold == 0 {
		cfg.Detector.CTRDropThreshold = def.CTRDropThreshold
	}
	if cfg.Detector.FreqHighThreshold == 0 {
		cfg.Detector.FreqHighThreshold = def.FreqHighThreshold
	}
	if cfg.Detector.BaselineWindowWeeks == 0 {
		cfg.Detector.BaselineWindowWeeks = def.BaselineWindowWeeks
	}
	if cfg.Detector.MinBaselineWeeks == 0 {
		cfg.Detector.MinBaselineWeeks = def.MinBaselineWeeks
	}
	if len(cfg.Detector.MinResults) == 0 {
		cfg.Detector.MinResults = def.MinResults
	}
	if cfg.Detector.WeightCPR == 0 && cfg.Detector.WeightFreq == 0 &&
		cfg.Detector.WeightCTR == 0 && cfg.Detector.WeightCPC == 0 {
		cfg.Detector.WeightCPR = def.WeightCPR
		cfg.Detector.WeightFreq = def.WeightFreq
		cfg.Detector.WeightCTR = def.WeightCTR
		cfg.Detector.WeightCPC = def.WeightCPC
	}

	defA := DefaultAnalyzerConfig()
	if cfg.Analyzer.PeriodWeeks == 0 {
		cfg.Analyzer.PeriodWeeks = defA.PeriodWeeks
	}
	if cfg.Analyzer.BrokenTrackingMinWeeks == 0 {
		cfg.Analyzer.BrokenTrackingMinWeeks = defA.BrokenTrackingMinWeeks
	}
	if cfg.Analyzer.VolatilityCVThreshold == 0 {
		cfg.Analyzer.VolatilityCVThreshold = defA.VolatilityCVThreshold
	}
	if cfg.Analyzer.FatigueFrequency == 0 {
		cfg.Analyzer.FatigueFrequency = defA.FatigueFrequency
	}
	if cfg.Analyzer.FatigueCTRDecline == 0 {
		cfg.Analyzer.FatigueCTRDecline = defA.FatigueCTRDecline
	}
	if cfg.Analyzer.CurveBuckets == 0 {
		cfg.Analyzer.CurveBuckets = defA.CurveBuckets
	}
	if cfg.Analyzer.SaturationFactor == 0 {
		cfg.Analyzer.SaturationFactor = defA.SaturationFactor
	}
	if len(cfg.Analyzer.LagBinEdges) == 0 {
		cfg.Analyzer.LagBinEdges = defA.LagBinEdges
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}

	return cfg, nil
}
