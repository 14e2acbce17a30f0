// Package config loads lead-finder configuration and initializes logging.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Runs    RunsConfig    `yaml:"runs" mapstructure:"runs"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Social  SocialConfig  `yaml:"social" mapstructure:"social"`
	Meta    MetaConfig    `yaml:"meta" mapstructure:"meta"`
	Maps    MapsConfig    `yaml:"maps" mapstructure:"maps"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
}

// StoreConfig configures the database backend ("sqlite" or "postgres").
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RunsConfig configures the run orchestrator.
type RunsConfig struct {
	MaxConcurrent  int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	TimeoutMins    int `yaml:"timeout_mins" mapstructure:"timeout_mins"`
	PollIntervalMs int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	PollAttempts   int `yaml:"poll_attempts" mapstructure:"poll_attempts"`
}

// Timeout returns the per-run execution budget; zero leaves runs unbounded.
func (c RunsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMins) * time.Minute
}

// PollInterval returns the CLI polling interval, falling back to one second
// when the configured value is not positive.
func (c RunsConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// RetryConfig is the shared upstream retry policy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// SocialConfig holds the social search API settings.
type SocialConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	BearerToken string `yaml:"bearer_token" mapstructure:"bearer_token"`
	PageSize    int    `yaml:"page_size" mapstructure:"page_size"`
}

// MetaConfig holds Instagram Graph API settings.
type MetaConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	APIVersion  string `yaml:"api_version" mapstructure:"api_version"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	IGUserID    string `yaml:"ig_user_id" mapstructure:"ig_user_id"`
}

// MapsConfig configures the map listing browser.
type MapsConfig struct {
	ProfileDir   string `yaml:"profile_dir" mapstructure:"profile_dir"`
	Headful      bool   `yaml:"headful" mapstructure:"headful"`
	Locale       string `yaml:"locale" mapstructure:"locale"`
	Region       string `yaml:"region" mapstructure:"region"`
	MaxTotalSecs int    `yaml:"max_total_secs" mapstructure:"max_total_secs"`
}

// AuditConfig configures website audits.
type AuditConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBytes    int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	SleepMs     int    `yaml:"sleep_ms" mapstructure:"sleep_ms"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ScoringConfig configures the keyword scorer.
type ScoringConfig struct {
	KeywordsFile  string `yaml:"keywords_file" mapstructure:"keywords_file"`
	KeywordWeight int    `yaml:"keyword_weight" mapstructure:"keyword_weight"`
	PhoneBonus    int    `yaml:"phone_bonus" mapstructure:"phone_bonus"`
	WebsiteBonus  int    `yaml:"website_bonus" mapstructure:"website_bonus"`
	FollowerBonus int    `yaml:"follower_bonus" mapstructure:"follower_bonus"`
}

// envAliases binds the variable names commonly found in existing .env files.
var envAliases = map[string][]string{
	"meta.access_token":   {"LEADS_META_ACCESS_TOKEN", "META_ACCESS_TOKEN"},
	"meta.ig_user_id":     {"LEADS_META_IG_USER_ID", "META_IG_USER_ID"},
	"social.bearer_token": {"LEADS_SOCIAL_BEARER_TOKEN", "X_BEARER_TOKEN"},
}

// Load reads configuration from .env, config.yaml, and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/leads.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("runs.max_concurrent", 2)
	v.SetDefault("runs.timeout_mins", 0)
	v.SetDefault("runs.poll_interval_ms", 1000)
	v.SetDefault("runs.poll_attempts", 1800)

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 20000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)

	v.SetDefault("social.base_url", "https://api.x.com")
	v.SetDefault("social.bearer_token", "")
	v.SetDefault("social.page_size", 100)

	v.SetDefault("meta.base_url", "https://graph.facebook.com")
	v.SetDefault("meta.api_version", "v24.0")
	v.SetDefault("meta.access_token", "")
	v.SetDefault("meta.ig_user_id", "")

	v.SetDefault("maps.profile_dir", ".cache/maps-profile")
	v.SetDefault("maps.headful", false)
	v.SetDefault("maps.locale", "en")
	v.SetDefault("maps.region", "")
	v.SetDefault("maps.max_total_secs", 420)

	v.SetDefault("audit.timeout_secs", 10)
	v.SetDefault("audit.max_bytes", 450000)
	v.SetDefault("audit.sleep_ms", 1000)
	v.SetDefault("audit.user_agent", "Mozilla/5.0 (compatible; LeadFinderAudit/1.0)")

	v.SetDefault("scoring.keywords_file", "")
	v.SetDefault("scoring.keyword_weight", 10)
	v.SetDefault("scoring.phone_bonus", 14)
	v.SetDefault("scoring.website_bonus", 3)
	v.SetDefault("scoring.follower_bonus", 8)
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
