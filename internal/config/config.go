package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"svfe-monitor/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	// Timezone is the zone the switch writes wall-clock times in.
	Timezone string `mapstructure:"timezone"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	Tables          TablesConfig  `mapstructure:"tables"`
}

// TablesConfig names the upstream tables the monitor reads.
type TablesConfig struct {
	Current    string `mapstructure:"current"`
	Historical string `mapstructure:"historical"`
	Recipients string `mapstructure:"recipients"`
}

// SchedulerConfig governs the evaluation cadence.
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	RunOnStart   bool          `mapstructure:"run_on_start"`
}

// MetricsConfig tunes KPI computation.
type MetricsConfig struct {
	FreshnessThreshold  time.Duration `mapstructure:"freshness_threshold"`
	RefusalExcludesZero bool          `mapstructure:"refusal_excludes_zero"`
	CurrentBucket       time.Duration `mapstructure:"current_bucket"`
	HistoricalBucket    time.Duration `mapstructure:"historical_bucket"`
	WatchedCodes        []int         `mapstructure:"watched_codes"`
}

// RulesConfig holds alert thresholds.
type RulesConfig struct {
	Locale                string  `mapstructure:"locale"`
	MinSuccessRate        float64 `mapstructure:"min_success_rate"`
	MaxRefusalRate        float64 `mapstructure:"max_refusal_rate"`
	MaxIssuerRefusalRate  float64 `mapstructure:"max_issuer_refusal_rate"`
	MaxChannelRefusalRate float64 `mapstructure:"max_channel_refusal_rate"`
	CriticalCodes         []int   `mapstructure:"critical_codes"`
	ExpectedChannels      []int   `mapstructure:"expected_channels"`
}

// AlertingConfig defines alert delivery.
type AlertingConfig struct {
	Suppression SuppressionConfig `mapstructure:"suppression"`
	Email       EmailConfig       `mapstructure:"email"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
}

// SuppressionConfig enables duplicate-alert suppression backed by Redis.
type SuppressionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Window   time.Duration `mapstructure:"window"`
	RedisURL string        `mapstructure:"redis_url"`
}

// EmailConfig describes SMTP delivery for critical alerts.
type EmailConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	From       string        `mapstructure:"from"`
	Subject    string        `mapstructure:"subject"`
	Footer     string        `mapstructure:"footer"`
	Recipients []string      `mapstructure:"recipients"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TelegramConfig describes the optional Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Disabled  bool   `mapstructure:"disabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// CatalogConfig maps institution codes to display names.
type CatalogConfig struct {
	Issuers map[string]string `mapstructure:"issuers"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SVFEMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path == "" {
		path = os.Getenv("SVFEMON_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "svfemon")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Local")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.query_timeout", "30s")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.tables.current", "transactions")
	v.SetDefault("database.tables.historical", "transactions_hist")
	v.SetDefault("database.tables.recipients", "users")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("metrics.freshness_threshold", "15m")
	v.SetDefault("metrics.refusal_excludes_zero", false)
	v.SetDefault("metrics.current_bucket", "1m")
	v.SetDefault("metrics.historical_bucket", "30m")
	v.SetDefault("metrics.watched_codes", []int{802, 803, 840})

	v.SetDefault("rules.locale", "fr")
	v.SetDefault("rules.min_success_rate", 70.0)
	v.SetDefault("rules.max_refusal_rate", 35.0)
	v.SetDefault("rules.max_issuer_refusal_rate", 70.0)
	v.SetDefault("rules.max_channel_refusal_rate", 60.0)
	v.SetDefault("rules.critical_codes", []int{802, 803, 910, 915})
	v.SetDefault("rules.expected_channels", []int{1, 2, 8})

	v.SetDefault("alerting.suppression.enabled", false)
	v.SetDefault("alerting.suppression.window", "15m")
	v.SetDefault("alerting.suppression.redis_url", "redis://localhost:6379/0")
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.email.subject", "Alerte SMTMonitoring")
	v.SetDefault("alerting.email.footer", "Merci de vérifier l'état du système à partir de l'application SMTMonitoring.")
	v.SetDefault("alerting.email.timeout", "15s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("auth.disabled", false)

	v.SetDefault("export.width", 1280)
	v.SetDefault("export.height", 720)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("database.query_timeout must be greater than zero")
	}
	if c.Metrics.FreshnessThreshold <= 0 {
		return fmt.Errorf("metrics.freshness_threshold must be greater than zero")
	}
	if c.Metrics.CurrentBucket < time.Minute || c.Metrics.HistoricalBucket < time.Minute {
		return fmt.Errorf("metrics trend buckets must be at least one minute")
	}
	for name, pct := range map[string]float64{
		"rules.min_success_rate":         c.Rules.MinSuccessRate,
		"rules.max_refusal_rate":         c.Rules.MaxRefusalRate,
		"rules.max_issuer_refusal_rate":  c.Rules.MaxIssuerRefusalRate,
		"rules.max_channel_refusal_rate": c.Rules.MaxChannelRefusalRate,
	} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%s must be within [0, 100]", name)
		}
	}
	if c.Rules.Locale != "fr" && c.Rules.Locale != "en" {
		return fmt.Errorf("rules.locale must be fr or en")
	}
	if c.Alerting.Suppression.Enabled && c.Alerting.Suppression.Window <= 0 {
		return fmt.Errorf("alerting.suppression.window must be greater than zero")
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" || c.Alerting.Email.From == "" {
			return fmt.Errorf("alerting.email.host and alerting.email.from are required")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required unless auth.disabled is set")
	}
	if _, err := c.IssuerNames(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves app.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" || strings.EqualFold(c.App.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app.timezone: %w", err)
	}
	return loc, nil
}

// IssuerNames converts catalog.issuers into a code-keyed table.
func (c *Config) IssuerNames() (map[int]string, error) {
	names := make(map[int]string, len(c.Catalog.Issuers))
	for raw, name := range c.Catalog.Issuers {
		code, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("catalog.issuers: invalid code %q", raw)
		}
		names[code] = name
	}
	return names, nil
}
