package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	YouTube   YouTubeConfig   `yaml:"youtube" mapstructure:"youtube"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" mapstructure:"snapshot"`
	Baseline  BaselineConfig  `yaml:"baseline" mapstructure:"baseline"`
	Trends    TrendsConfig    `yaml:"trends" mapstructure:"trends"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// YouTubeConfig holds Data API credentials and client tuning.
type YouTubeConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// Timeout returns the configured request timeout.
func (c YouTubeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings for topic extraction and
// clustering.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DiscoveryConfig selects and tunes the discovery source.
type DiscoveryConfig struct {
	Mode                string `yaml:"mode" mapstructure:"mode"` // "polling" or "websub"
	PollIntervalMinutes int    `yaml:"poll_interval_minutes" mapstructure:"poll_interval_minutes"`
	WebSubCallbackURL   string `yaml:"websub_callback_url" mapstructure:"websub_callback_url"`
	WebSubHubURL        string `yaml:"websub_hub_url" mapstructure:"websub_hub_url"`
	WebSubLeaseSecs     int    `yaml:"websub_lease_secs" mapstructure:"websub_lease_secs"`
}

// PollInterval returns the polling cadence.
func (c DiscoveryConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// SnapshotConfig tunes the snapshot worker.
type SnapshotConfig struct {
	IntervalMinutes int `yaml:"interval_minutes" mapstructure:"interval_minutes"`
	MaxAttempts     int `yaml:"max_attempts" mapstructure:"max_attempts"`
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	FetchLimit      int `yaml:"fetch_limit" mapstructure:"fetch_limit"`
}

// Interval returns the worker cadence.
func (c SnapshotConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// BaselineConfig tunes the baseline calculator.
type BaselineConfig struct {
	UpdateHours int `yaml:"update_hours" mapstructure:"update_hours"`
	SampleSize  int `yaml:"sample_size" mapstructure:"sample_size"`
	MinSample   int `yaml:"min_sample" mapstructure:"min_sample"`
}

// Interval returns the calculator cadence.
func (c BaselineConfig) Interval() time.Duration {
	return time.Duration(c.UpdateHours) * time.Hour
}

// TrendsConfig tunes the trend aggregator.
type TrendsConfig struct {
	IntervalHours       int     `yaml:"interval_hours" mapstructure:"interval_hours"`
	MinPerformanceRatio float64 `yaml:"min_performance_ratio" mapstructure:"min_performance_ratio"`
	MinChannels         int     `yaml:"min_channels" mapstructure:"min_channels"`
	WindowDays          int     `yaml:"window_days" mapstructure:"window_days"`
}

// Interval returns the aggregator cadence.
func (c TrendsConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// Window returns the trailing candidate window.
func (c TrendsConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// ServerConfig configures the discovery webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig tunes background health checks and alerting. Alerts are
// delivered only when a webhook URL is set; the checker itself always runs
// and logs.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	OverdueThreshold     int     `yaml:"overdue_threshold" mapstructure:"overdue_threshold"`
	StaleTrendsHours     int     `yaml:"stale_trends_hours" mapstructure:"stale_trends_hours"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	// QuotaThreshold is the alerting fraction of the daily YouTube quota.
	QuotaThreshold float64 `yaml:"quota_threshold" mapstructure:"quota_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRENDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("youtube.base_url", "https://www.googleapis.com/youtube/v3")
	v.SetDefault("youtube.timeout_secs", 30)
	v.SetDefault("youtube.requests_per_sec", 5)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("discovery.mode", "polling")
	v.SetDefault("discovery.poll_interval_minutes", 15)
	v.SetDefault("discovery.websub_hub_url", "https://pubsubhubbub.appspot.com/subscribe")
	v.SetDefault("discovery.websub_lease_secs", 10*24*60*60)
	v.SetDefault("snapshot.interval_minutes", 5)
	v.SetDefault("snapshot.max_attempts", 5)
	v.SetDefault("snapshot.concurrency", 8)
	v.SetDefault("snapshot.fetch_limit", 100)
	v.SetDefault("baseline.update_hours", 12)
	v.SetDefault("baseline.sample_size", 30)
	v.SetDefault("baseline.min_sample", 5)
	v.SetDefault("trends.interval_hours", 24)
	v.SetDefault("trends.min_performance_ratio", 1.5)
	v.SetDefault("trends.min_channels", 3)
	v.SetDefault("trends.window_days", 14)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.overdue_threshold", 50)
	v.SetDefault("monitoring.stale_trends_hours", 48)
	v.SetDefault("monitoring.quota_threshold", 0.8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate reports required settings that are missing or inconsistent.
func (c *Config) Validate() []string {
	var errs []string
	if c.Store.Driver != "postgres" && c.Store.Driver != "sqlite" {
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	if c.YouTube.APIKey == "" {
		errs = append(errs, "youtube.api_key is missing")
	}
	if c.Discovery.Mode != "polling" && c.Discovery.Mode != "websub" {
		errs = append(errs, "discovery.mode must be polling or websub")
	}
	if c.Discovery.Mode == "websub" && c.Discovery.WebSubCallbackURL == "" {
		errs = append(errs, "discovery.websub_callback_url is required in websub mode")
	}
	if c.Snapshot.MaxAttempts < 1 {
		errs = append(errs, "snapshot.max_attempts must be at least 1")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
