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
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`
	Shop   ShopConfig   `yaml:"shop" mapstructure:"shop"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the warehouse backend.
type StoreConfig struct {
	// Driver selects the backend: "postgres", "sqlite", or "snowflake".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// LedgerConfig holds credentials for the accounting/ERP REST API.
// The API authenticates with two opaque tokens sent as request headers.
type LedgerConfig struct {
	BaseURL             string `yaml:"base_url" mapstructure:"base_url"`
	AppSecretToken      string `yaml:"app_secret_token" mapstructure:"app_secret_token"`
	AgreementGrantToken string `yaml:"agreement_grant_token" mapstructure:"agreement_grant_token"`
}

// ShopConfig holds credentials for the e-commerce API.
type ShopConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// IngestConfig configures the sync engine.
type IngestConfig struct {
	// EndpointsFile optionally points at a YAML file overriding the
	// built-in endpoint registry.
	EndpointsFile string `yaml:"endpoints_file" mapstructure:"endpoints_file"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int    `yaml:"max_retries" mapstructure:"max_retries"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSecond int    `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	UserAgent     string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the observability server.
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
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credential keys default to empty so environment overrides
	// are picked up even without a config file.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("ledger.base_url", "")
	v.SetDefault("ledger.app_secret_token", "")
	v.SetDefault("ledger.agreement_grant_token", "")
	v.SetDefault("shop.base_url", "")
	v.SetDefault("shop.api_key", "")
	v.SetDefault("ingest.endpoints_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.timeout_secs", 30)
	v.SetDefault("ingest.max_retries", 3)
	v.SetDefault("ingest.concurrency", 1)
	v.SetDefault("ingest.rate_per_second", 5)
	v.SetDefault("ingest.user_agent", "ingest-cli/1.0")

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
