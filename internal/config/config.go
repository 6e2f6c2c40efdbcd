// Package config loads the pipeline configuration: YAML file over defaults,
// environment over YAML for the connection settings that differ per deploy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/flowrun/internal/classify"
	"github.com/sawpanic/flowrun/internal/dark"
	httpiface "github.com/sawpanic/flowrun/internal/interfaces/http"
	"github.com/sawpanic/flowrun/internal/persistence/postgres"
	"github.com/sawpanic/flowrun/internal/stream"
)

// Config is the full pipeline configuration.
type Config struct {
	Pipeline PipelineConfig         `yaml:"pipeline"`
	Rolling  RollingConfig          `yaml:"rolling"`
	Classify ClassifyConfig         `yaml:"classify"`
	Dark     DarkConfig             `yaml:"dark"`
	Bus      BusConfig              `yaml:"bus"`
	Database postgres.Config        `yaml:"database"`
	Monitor  httpiface.ServerConfig `yaml:"monitor"`
}

// PipelineConfig holds the clustering and join-freshness settings.
type PipelineConfig struct {
	WindowMs            int64  `yaml:"window_ms"`
	NBBOMaxAgeMs        int64  `yaml:"nbbo_max_age_ms"`
	EquityQuoteMaxAgeMs int64  `yaml:"equity_quote_max_age_ms"`
	CandleIntervalMs    int64  `yaml:"candle_interval_ms"`
	StructureWindowMs   int64  `yaml:"structure_window_ms"`
	StructureCapacity   int    `yaml:"structure_capacity"`
	ConsumerGroup       string `yaml:"consumer_group"`
}

// RollingConfig holds the z-score baseline settings.
type RollingConfig struct {
	Window    int           `yaml:"window"`
	TTL       time.Duration `yaml:"ttl"`
	UseRedis  bool          `yaml:"use_redis"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
}

// ClassifyConfig mirrors the classifier thresholds in YAML form.
type ClassifyConfig struct {
	SweepMinCount     int     `yaml:"sweep_min_count"`
	SweepMinPremium   float64 `yaml:"sweep_min_premium"`
	SweepMinZ         float64 `yaml:"sweep_min_z"`
	ZMinSamples       int     `yaml:"z_min_samples"`
	SpikeMinSize      float64 `yaml:"spike_min_size"`
	SpikeMinPremium   float64 `yaml:"spike_min_premium"`
	SpikeMinZ         float64 `yaml:"spike_min_z"`
	SizeMinZ          float64 `yaml:"size_min_z"`
	MinCoverage       float64 `yaml:"min_coverage"`
	MinAggRatio       float64 `yaml:"min_agg_ratio"`
	FarDTEDays        int     `yaml:"far_dte_days"`
	ZeroDTEMaxATMPct  float64 `yaml:"zero_dte_max_atm_pct"`
	ZeroDTEMinSize    float64 `yaml:"zero_dte_min_size"`
	ZeroDTEMinPremium float64 `yaml:"zero_dte_min_premium"`
}

// DarkConfig mirrors the dark-inference thresholds in YAML form.
type DarkConfig struct {
	MinBlockSize float64 `yaml:"min_block_size"`
	MinPrintSize float64 `yaml:"min_print_size"`
	MinCount     int     `yaml:"min_count"`
	MinSize      float64 `yaml:"min_size"`
	WindowMs     int64   `yaml:"window_ms"`
	CooldownMs   int64   `yaml:"cooldown_ms"`
	MaxSpreadPct float64 `yaml:"max_spread_pct"`
	MaxEvidence  int     `yaml:"max_evidence"`
}

// BusConfig holds the Redis Streams bus settings.
type BusConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	MaxLen         int64         `yaml:"max_len"`
	ConsumerName   string        `yaml:"consumer_name"`
	DeliverPolicy  string        `yaml:"deliver_policy"`
	ResetConsumers bool          `yaml:"reset_consumers"`
	Block          time.Duration `yaml:"block"`
	BatchSize      int64         `yaml:"batch_size"`
	ClaimMinIdle   time.Duration `yaml:"claim_min_idle"`
}

// Default returns the documented defaults.
func Default() Config {
	bus := stream.DefaultRedisConfig()
	return Config{
		Pipeline: PipelineConfig{
			WindowMs:            500,
			NBBOMaxAgeMs:        5000,
			EquityQuoteMaxAgeMs: 5000,
			CandleIntervalMs:    60_000,
			StructureWindowMs:   500,
			StructureCapacity:   256,
			ConsumerGroup:       "flowrun",
		},
		Rolling: RollingConfig{
			Window:    50,
			TTL:       6 * time.Hour,
			UseRedis:  false,
			RedisAddr: "localhost:6379",
		},
		Classify: ClassifyConfig(classify.DefaultConfig()),
		Dark: DarkConfig{
			MinBlockSize: 2000,
			MinPrintSize: 200,
			MinCount:     6,
			MinSize:      10000,
			WindowMs:     120_000,
			CooldownMs:   300_000,
			MaxSpreadPct: 0.005,
			MaxEvidence:  12,
		},
		Bus: BusConfig{
			Addr:          bus.Addr,
			MaxLen:        bus.MaxLen,
			ConsumerName:  bus.ConsumerName,
			DeliverPolicy: string(bus.DeliverPolicy),
			Block:         bus.Block,
			BatchSize:     bus.BatchSize,
			ClaimMinIdle:  bus.ClaimMinIdle,
		},
		Database: postgres.DefaultConfig(),
		Monitor:  httpiface.DefaultServerConfig(),
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path loads defaults plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("FLOWRUN_BUS_ADDR"); v != "" {
		c.Bus.Addr = v
	}
	if v := os.Getenv("FLOWRUN_BUS_PASSWORD"); v != "" {
		c.Bus.Password = v
	}
	if v := os.Getenv("FLOWRUN_PG_DSN"); v != "" {
		c.Database.DSN = v
		c.Database.Enabled = true
	}
	if v := os.Getenv("FLOWRUN_ROLLING_REDIS_ADDR"); v != "" {
		c.Rolling.RedisAddr = v
		c.Rolling.UseRedis = true
	}
	if v := os.Getenv("FLOWRUN_MONITOR_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Monitor.Port = p
		}
	}
	if v := os.Getenv("FLOWRUN_CONSUMER_NAME"); v != "" {
		c.Bus.ConsumerName = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.WindowMs <= 0 {
		return fmt.Errorf("pipeline.window_ms must be positive, got %d", c.Pipeline.WindowMs)
	}
	if c.Pipeline.NBBOMaxAgeMs <= 0 || c.Pipeline.EquityQuoteMaxAgeMs <= 0 {
		return fmt.Errorf("quote freshness ceilings must be positive")
	}
	if c.Pipeline.CandleIntervalMs <= 0 {
		return fmt.Errorf("pipeline.candle_interval_ms must be positive, got %d", c.Pipeline.CandleIntervalMs)
	}
	if c.Rolling.Window < 2 {
		return fmt.Errorf("rolling.window must be at least 2, got %d", c.Rolling.Window)
	}
	if !stream.DeliverPolicy(c.Bus.DeliverPolicy).Valid() {
		return fmt.Errorf("bus.deliver_policy %q is not one of new, all, last, last_per_subject", c.Bus.DeliverPolicy)
	}
	if c.Dark.WindowMs <= 0 || c.Dark.CooldownMs < 0 {
		return fmt.Errorf("dark window and cooldown must be positive")
	}
	return nil
}

// ClassifierConfig converts to the classifier bank's config type.
func (c *Config) ClassifierConfig() classify.Config {
	return classify.Config(c.Classify)
}

// DarkEngineConfig converts to the dark engine's config type.
func (c *Config) DarkEngineConfig() dark.Config {
	return dark.Config(c.Dark)
}

// RedisBusConfig converts to the bus config type.
func (c *Config) RedisBusConfig() stream.RedisConfig {
	out := stream.DefaultRedisConfig()
	out.Addr = c.Bus.Addr
	out.Password = c.Bus.Password
	out.DB = c.Bus.DB
	out.MaxLen = c.Bus.MaxLen
	out.ConsumerName = c.Bus.ConsumerName
	out.DeliverPolicy = stream.DeliverPolicy(c.Bus.DeliverPolicy)
	out.ResetConsumers = c.Bus.ResetConsumers
	out.Block = c.Bus.Block
	out.BatchSize = c.Bus.BatchSize
	out.ClaimMinIdle = c.Bus.ClaimMinIdle
	return out
}
