package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// SchedulerConfig governs batch cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// EngineConfig tunes the attribution and classification rules.
type EngineConfig struct {
	Workers          int     `mapstructure:"workers"`
	RiskWindowDays   int     `mapstructure:"risk_window_days"`
	TypoGraceDays    int     `mapstructure:"typo_grace_days"`
	ICPThreshold     float64 `mapstructure:"icp_threshold"`
	ShareAPct        float64 `mapstructure:"share_a_pct"`
	ShareBPct        float64 `mapstructure:"share_b_pct"`
	NeglectFastDays  int     `mapstructure:"neglect_fast_days"`
	NeglectSlowDays  int     `mapstructure:"neglect_slow_days"`
	AnomalySampleCap int     `mapstructure:"anomaly_sample_cap"`
}

// AlertingConfig defines batch digest routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	MaxFlags int            `mapstructure:"max_flags"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxYears int `mapstructure:"max_years"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REVWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("app.name", "revwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x72657677))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.risk_window_days", 180)
	v.SetDefault("engine.typo_grace_days", 30)
	v.SetDefault("engine.icp_threshold", 80.0)
	v.SetDefault("engine.share_a_pct", 15.0)
	v.SetDefault("engine.share_b_pct", 5.0)
	v.SetDefault("engine.neglect_fast_days", 30)
	v.SetDefault("engine.neglect_slow_days", 90)
	v.SetDefault("engine.anomaly_sample_cap", 10)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.max_flags", 5)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_years", 10)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
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
	if c.Engine.Workers <= 0 {
		return fmt.Errorf("engine.workers must be greater than zero")
	}
	if c.Engine.RiskWindowDays < 0 {
		return fmt.Errorf("engine.risk_window_days cannot be negative")
	}
	if c.Engine.NeglectFastDays <= 0 || c.Engine.NeglectSlowDays <= 0 {
		return fmt.Errorf("engine neglect thresholds must be greater than zero")
	}
	if c.Engine.ShareBPct > c.Engine.ShareAPct {
		return fmt.Errorf("engine.share_b_pct cannot exceed engine.share_a_pct")
	}
	if c.Export.MaxYears <= 0 {
		return fmt.Errorf("export.max_years must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}
