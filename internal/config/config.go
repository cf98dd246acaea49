// Package config loads tracechain settings from config.yaml and TRACECHAIN_*
// environment variables, and initializes the global zap logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. TRACECHAIN_STORE_DRIVER.
const EnvPrefix = "TRACECHAIN"

type Config struct {
	Ledger  LedgerConfig  `yaml:"ledger" mapstructure:"ledger"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Blob    BlobConfig    `yaml:"blob" mapstructure:"blob"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Trace   TraceConfig   `yaml:"trace" mapstructure:"trace"`
}

type LedgerConfig struct {
	Owner     string `yaml:"owner" mapstructure:"owner"`
	TokenMode string `yaml:"token_mode" mapstructure:"token_mode"`
	// TokenDomain separates hash tokens of independent deployments.
	TokenDomain string `yaml:"token_domain" mapstructure:"token_domain"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn" mapstructure:"postgres_dsn"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver" mapstructure:"driver"`
	FSRoot string   `yaml:"fs_root" mapstructure:"fs_root"`
	S3     S3Config `yaml:"s3" mapstructure:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	PathStyle       bool   `yaml:"path_style" mapstructure:"path_style"`
	AccessKeyID     string `yaml:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" mapstructure:"secret_access_key"`
}

type ServerConfig struct {
	Port           int     `yaml:"port" mapstructure:"port"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
	EventBuffer    int     `yaml:"event_buffer" mapstructure:"event_buffer"`
}

type MetricsConfig struct {
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// TraceConfig enables the JSON-lines operation trace. An empty Path
// disables tracing.
type TraceConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml from the working directory when present.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads settings from path, or from config.yaml in the working
// directory when path is empty. A missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ledger.owner", "owner")
	v.SetDefault("ledger.token_mode", "hash")
	v.SetDefault("ledger.token_domain", "tracechain")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.sqlite_path", "tracechain.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("blob.driver", "memory")
	v.SetDefault("blob.fs_root", "./blobdata")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.path_style", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 50)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("server.event_buffer", 256)
	v.SetDefault("metrics.backend", "prometheus")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("trace.path", "")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate lower-cases driver and mode names and rejects unknown ones.
func (c *Config) Validate() error {
	for _, field := range []*string{&c.Ledger.TokenMode, &c.Store.Driver, &c.Blob.Driver, &c.Metrics.Backend, &c.Log.Format} {
		*field = strings.ToLower(strings.TrimSpace(*field))
	}
	checks := []struct {
		key, value string
		allowed    []string
	}{
		{"ledger.token_mode", c.Ledger.TokenMode, []string{"hash", "random"}},
		{"store.driver", c.Store.Driver, []string{"memory", "sqlite", "postgres"}},
		{"blob.driver", c.Blob.Driver, []string{"memory", "fs", "s3"}},
		{"metrics.backend", c.Metrics.Backend, []string{"prometheus", "expvar", "none"}},
	}
	for _, check := range checks {
		if !contains(check.allowed, check.value) {
			return eris.Errorf("config: %s must be one of %s, got %q", check.key, strings.Join(check.allowed, "|"), check.value)
		}
	}
	if c.Ledger.Owner == "" {
		return eris.New("config: ledger.owner must not be empty")
	}
	if c.Store.Driver == "postgres" && c.Store.PostgresDSN == "" {
		return eris.New("config: store.postgres_dsn is required for the postgres driver")
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return eris.New("config: blob.s3.bucket is required for the s3 driver")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// InitLogger builds a zap logger from cfg and installs it as the global logger.
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
