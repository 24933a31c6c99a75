package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Matching MatchingConfig `yaml:"matching" mapstructure:"matching"`
	Backfill BackfillConfig `yaml:"backfill" mapstructure:"backfill"`
	Report   ReportConfig   `yaml:"report" mapstructure:"report"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// IngestConfig configures listing snapshot ingestion.
type IngestConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	Overwrite   bool `yaml:"overwrite" mapstructure:"overwrite"`
}

// CatalogConfig configures the partner catalog feed import.
type CatalogConfig struct {
	FeedURL         string  `yaml:"feed_url" mapstructure:"feed_url"`
	FeedSheet       string  `yaml:"feed_sheet" mapstructure:"feed_sheet"`
	RequestsPerSec  float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	DownloadTimeout int     `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
}

// MatchingConfig configures automatic catalog matching.
type MatchingConfig struct {
	NameSimilarityThreshold float64 `yaml:"name_similarity_threshold" mapstructure:"name_similarity_threshold"`
}

// BackfillConfig configures the dynamic percentile filter.
type BackfillConfig struct {
	Percentile float64 `yaml:"percentile" mapstructure:"percentile"`
}

// ReportConfig configures report generation.
type ReportConfig struct {
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	TrendingDays int    `yaml:"trending_days" mapstructure:"trending_days"`
}

// ServerConfig configures the read-only query API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("MARKETWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "marketwatch.db")
	v.SetDefault("catalog.feed_url", "")
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.overwrite", false)
	v.SetDefault("catalog.feed_sheet", "Products")
	v.SetDefault("catalog.requests_per_sec", 2.0)
	v.SetDefault("catalog.download_timeout_secs", 120)
	v.SetDefault("matching.name_similarity_threshold", 0.6)
	v.SetDefault("backfill.percentile", 80.0)
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.trending_days", 7)
	v.SetDefault("server.port", 8080)
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
