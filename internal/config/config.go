// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// ShortNoticeTier charges Charge when the appointment starts within WithinHours.
type ShortNoticeTier struct {
	WithinHours float64 `yaml:"within_hours"`
	Charge      float64 `yaml:"charge"`
}

type PricingConfig struct {
	Strategy              string            `yaml:"strategy"`
	Timezone              string            `yaml:"timezone"`
	OverrideEpsilon       float64           `yaml:"override_epsilon"`
	ShortNoticeTiers      []ShortNoticeTier `yaml:"short_notice_tiers"`
	DisabledContributions []string          `yaml:"disabled_contributions"`
}

type SnapshotConfig struct {
	RefreshCron string `yaml:"refresh_cron"`
}

type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Password string        `yaml:"-"` // Loaded from environment
}

type AlertsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	FromEmail  string `yaml:"from_email"`
	ToEmail    string `yaml:"to_email"`
	DigestCron string `yaml:"digest_cron"`
	// Loaded from environment
	AWSRegion          string `yaml:"-"`
	AWSAccessKeyID     string `yaml:"-"`
	AWSSecretAccessKey string `yaml:"-"`
}

type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	QuotesPerIP   int           `yaml:"quotes_per_ip"`
	Window        time.Duration `yaml:"window"`
	TrustProxy    bool          `yaml:"trust_proxy"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AdminTokenHash  string        `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Cache     CacheConfig     `yaml:"cache"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Features struct {
		RecordQuotes bool `yaml:"record_quotes"`
		EnableDebug  bool `yaml:"enable_debug"`
	} `yaml:"features"`
}

// ContributionNames lists the hourly-rate contributions that may be disabled.
var ContributionNames = []string{
	"serviceType",
	"sameDayTurnaround",
	"cleaningProducts",
	"notPreCleaned",
	"equipment",
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// Read and parse YAML config
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.App.AdminTokenHash = os.Getenv("ADMIN_TOKEN_HASH")
	cfg.Cache.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Alerts.AWSRegion = os.Getenv("AWS_REGION")
	cfg.Alerts.AWSAccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Alerts.AWSSecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults without validating.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration that runs locally without external services.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "tidyquote"
	cfg.App.Environment = "development"
	cfg.App.Port = 8080
	cfg.App.ShutdownTimeout = 30 * time.Second
	cfg.Database = DatabaseConfig{Driver: "sqlite", Filename: "data/tidyquote.db"}
	cfg.Pricing = PricingConfig{
		Strategy:        "standard",
		Timezone:        "Europe/London",
		OverrideEpsilon: 0.01,
		ShortNoticeTiers: []ShortNoticeTier{
			{WithinHours: 12, Charge: 50},
			{WithinHours: 24, Charge: 30},
			{WithinHours: 48, Charge: 15},
		},
	}
	cfg.Snapshot.RefreshCron = "*/5 * * * *"
	cfg.Cache = CacheConfig{Addr: "localhost:6379", TTL: 10 * time.Minute}
	cfg.Alerts.DigestCron = "0 8 * * *"
	cfg.RateLimit = RateLimitConfig{
		Enabled:       true,
		QuotesPerIP:   60,
		Window:        time.Minute,
		CleanupPeriod: 5 * time.Minute,
	}
	return cfg
}

// Location returns the pricing timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Pricing.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Pricing.Timezone)
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	// Validate based on database driver
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if err := c.validatePricing(); err != nil {
		return err
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if c.Snapshot.RefreshCron != "" {
		if _, err := parser.Parse(c.Snapshot.RefreshCron); err != nil {
			return fmt.Errorf("invalid snapshot refresh_cron %q: %w", c.Snapshot.RefreshCron, err)
		}
	}

	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache addr is required when cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
	}

	if c.Alerts.Enabled {
		if c.Alerts.FromEmail == "" || c.Alerts.ToEmail == "" {
			return fmt.Errorf("alerts from_email and to_email are required when alerts are enabled")
		}
		if _, err := parser.Parse(c.Alerts.DigestCron); err != nil {
			return fmt.Errorf("invalid alerts digest_cron %q: %w", c.Alerts.DigestCron, err)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.QuotesPerIP <= 0 {
			return fmt.Errorf("rate_limit quotes_per_ip must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit window must be positive")
		}
	}

	return nil
}

func (c *Config) validatePricing() error {
	switch c.Pricing.Strategy {
	case "", "standard", "formula":
	default:
		return fmt.Errorf("unsupported pricing strategy: %s", c.Pricing.Strategy)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid pricing timezone %q: %w", c.Pricing.Timezone, err)
	}
	if c.Pricing.OverrideEpsilon < 0 {
		return fmt.Errorf("pricing override_epsilon must not be negative")
	}
	for i, tier := range c.Pricing.ShortNoticeTiers {
		if tier.WithinHours <= 0 {
			return fmt.Errorf("short_notice_tiers[%d]: within_hours must be positive", i)
		}
		if tier.Charge < 0 {
			return fmt.Errorf("short_notice_tiers[%d]: charge must not be negative", i)
		}
	}
	for _, name := range c.Pricing.DisabledContributions {
		if !knownContribution(name) {
			return fmt.Errorf("unknown disabled contribution %q", name)
		}
	}
	return nil
}

func knownContribution(name string) bool {
	for _, known := range ContributionNames {
		if known == name {
			return true
		}
	}
	return false
}
