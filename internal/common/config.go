package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/pretium/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Cache       CacheConfig     `toml:"cache"`
	Providers   ProvidersConfig `toml:"providers"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Calendar    CalendarConfig  `toml:"calendar"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=0,max=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CacheConfig controls the disk-backed quote cache.
type CacheConfig struct {
	Dir        string          `toml:"dir"`         // Cache directory path
	MaxEntries int             `toml:"max_entries"` // Maximum cached entries before LRU eviction (default: 50)
	Staleness  StalenessConfig `toml:"staleness"`
}

// StalenessConfig holds per-capability freshness windows as duration strings.
// Empty values fall back to the documented defaults.
type StalenessConfig struct {
	Realtime   string `toml:"realtime"`   // Freshness window during an open session (default: "15s")
	History    string `toml:"history"`    // Freshness window when a range touches the open session (default: "5m")
	Factors    string `toml:"factors"`    // Upper bound for valuation factor freshness (default: "24h")
	Profile    string `toml:"profile"`    // Company profile freshness (default: "168h")
	Financials string `toml:"financials"` // Financial statement freshness (default: "24h")
}

type ProvidersConfig struct {
	Eastmoney EastmoneyConfig `toml:"eastmoney"`
	Tushare   TushareConfig   `toml:"tushare"`
}

// EastmoneyConfig contains settings for the Eastmoney scraping provider
type EastmoneyConfig struct {
	BaseURL     string  `toml:"base_url"`     // Kline/history endpoint root
	RealtimeURL string  `toml:"realtime_url"` // Realtime snapshot endpoint root
	ProfileURL  string  `toml:"profile_url"`  // Company profile pages root
	RateLimit   float64 `toml:"rate_limit"`   // Requests per second
	Timeout     string  `toml:"timeout"`      // HTTP request timeout, e.g. "30s"
	UserAgent   string  `toml:"user_agent"`
}

// TushareConfig contains settings for the TusharePro API provider
type TushareConfig struct {
	BaseURL   string  `toml:"base_url"`
	RateLimit float64 `toml:"rate_limit"` // Requests per second
	Timeout   string  `toml:"timeout"`    // HTTP request timeout, e.g. "30s"
	TokenKey  string  `toml:"token_key"`  // KV storage key holding the API token
}

type SchedulerConfig struct {
	Enabled       bool   `toml:"enabled"`
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule format
}

// CalendarConfig points at the market calendar definitions file.
type CalendarConfig struct {
	Path string `toml:"path"` // markets.yaml path; missing file falls back to compiled defaults
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error fatal"` // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`                                                            // "json" or "text"
	Output     []string `toml:"output"`                                                            // "stdout", "file"
	TimeFormat string   `toml:"time_format"`                                                       // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in pretium.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Cache: CacheConfig{
			Dir:        "./data/cache",
			MaxEntries: 50,
			Staleness: StalenessConfig{
				Realtime:   "15s",
				History:    "5m",
				Factors:    "24h",
				Profile:    "168h",
				Financials: "24h",
			},
		},
		Providers: ProvidersConfig{
			Eastmoney: EastmoneyConfig{
				BaseURL:     "https://push2his.eastmoney.com",
				RealtimeURL: "https://push2.eastmoney.com",
				ProfileURL:  "https://emweb.securities.eastmoney.com",
				RateLimit:   5, // Keep scraping polite - Eastmoney throttles aggressive clients
				Timeout:     "30s",
				UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			Tushare: TushareConfig{
				BaseURL:   "http://api.tushare.pro",
				RateLimit: 1, // Free-tier tokens allow roughly 60 calls per minute
				Timeout:   "30s",
				TokenKey:  "tushare_token",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			SweepSchedule: "*/30 * * * *", // Every 30 minutes (cron format)
		},
		Calendar: CalendarConfig{
			Path: "./markets.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",                     // Info level for production (debug|info|warn|error)
			Format: "text",                     // Human-readable text format (text|json)
			Output: []string{"stdout", "file"}, // Log to both console and file
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
// Example: LoadFromFiles("base.toml", "override.toml") - override.toml settings take precedence over base.toml
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: PRETIUM_ENV, fallback: GO_ENV)
	if env := os.Getenv("PRETIUM_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PRETIUM_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PRETIUM_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("PRETIUM_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Cache configuration
	if cacheDir := os.Getenv("PRETIUM_CACHE_DIR"); cacheDir != "" {
		config.Cache.Dir = cacheDir
	}
	if maxEntries := os.Getenv("PRETIUM_CACHE_MAX_ENTRIES"); maxEntries != "" {
		if m, err := strconv.Atoi(maxEntries); err == nil {
			config.Cache.MaxEntries = m
		}
	}

	// Scheduler configuration
	if schedule := os.Getenv("PRETIUM_SWEEP_SCHEDULE"); schedule != "" {
		config.Scheduler.SweepSchedule = schedule
	}

	// Calendar configuration
	if calendarPath := os.Getenv("PRETIUM_CALENDAR_PATH"); calendarPath != "" {
		config.Calendar.Path = calendarPath
	}

	// Logging configuration
	if level := os.Getenv("PRETIUM_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("PRETIUM_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("PRETIUM_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag values to config
// Command-line flags have highest priority
func ApplyFlagOverrides(config *Config, port int, logLevel string, cacheDir string) {
	if port > 0 {
		config.Server.Port = port
	}
	if logLevel != "" {
		config.Logging.Level = logLevel
	}
	if cacheDir != "" {
		config.Cache.Dir = cacheDir
	}
}

// Validate checks structural constraints on the loaded configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Scheduler.Enabled {
		if err := ValidateSweepSchedule(c.Scheduler.SweepSchedule); err != nil {
			return fmt.Errorf("invalid scheduler.sweep_schedule: %w", err)
		}
	}

	for name, value := range map[string]string{
		"cache.staleness.realtime":   c.Cache.Staleness.Realtime,
		"cache.staleness.history":    c.Cache.Staleness.History,
		"cache.staleness.factors":    c.Cache.Staleness.Factors,
		"cache.staleness.profile":    c.Cache.Staleness.Profile,
		"cache.staleness.financials": c.Cache.Staleness.Financials,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// ValidateSweepSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSweepSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// ResolveProviderToken resolves a provider credential by KV key name with
// environment variable priority
// Resolution order: environment variables → KV store → error
// This ensures PRETIUM_* environment variables always take precedence
func ResolveProviderToken(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string) (string, error) {
	// Map of KV store key names to environment variable names
	// Environment variables have highest priority
	keyToEnvMapping := map[string][]string{
		"tushare_token": {"PRETIUM_TUSHARE_TOKEN", "TUSHARE_TOKEN"},
	}

	// Check environment variables (highest priority)
	if envVarNames, hasMappedEnv := keyToEnvMapping[name]; hasMappedEnv {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	// Try to resolve from KV store
	if kvStorage != nil {
		token, err := kvStorage.Get(ctx, name)
		if err == nil && token != "" {
			return token, nil
		}
	}

	return "", fmt.Errorf("provider token '%s' not found in environment or KV store", name)
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// EastmoneyTimeout returns the parsed Eastmoney HTTP timeout, falling back to 30s.
func (c *Config) EastmoneyTimeout() time.Duration {
	return parseDurationOr(c.Providers.Eastmoney.Timeout, 30*time.Second)
}

// TushareTimeout returns the parsed Tushare HTTP timeout, falling back to 30s.
func (c *Config) TushareTimeout() time.Duration {
	return parseDurationOr(c.Providers.Tushare.Timeout, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
