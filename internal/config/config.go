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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the local lead store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ImportConfig configures bulk-import defaults and pacing.
type ImportConfig struct {
	DefaultProduct        string  `yaml:"default_product" mapstructure:"default_product"`
	DefaultPrice          float64 `yaml:"default_price" mapstructure:"default_price"`
	DefaultCountry        string  `yaml:"default_country" mapstructure:"default_country"`
	Origin                string  `yaml:"origin" mapstructure:"origin"`
	PaymentMethod         string  `yaml:"payment_method" mapstructure:"payment_method"`
	PaymentStatus         string  `yaml:"payment_status" mapstructure:"payment_status"`
	MaxRetries            int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMillis    int     `yaml:"retry_backoff_millis" mapstructure:"retry_backoff_millis"`
	MaxBackoffMillis      int     `yaml:"max_backoff_millis" mapstructure:"max_backoff_millis"`
	InterBatchDelayMillis int     `yaml:"inter_batch_delay_millis" mapstructure:"inter_batch_delay_millis"`
	CheckpointTTLMinutes  int     `yaml:"checkpoint_ttl_minutes" mapstructure:"checkpoint_ttl_minutes"`
}

// CheckpointTTL returns the checkpoint staleness cutoff as a duration.
func (c ImportConfig) CheckpointTTL() time.Duration {
	return time.Duration(c.CheckpointTTLMinutes) * time.Minute
}

// CatalogConfig configures the optional product catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the local control-plane server.
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
	v.SetEnvPrefix("LEADADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "leads.db")
	v.SetDefault("import.default_product", "Kit Completo")
	v.SetDefault("import.default_price", 67.90)
	v.SetDefault("import.default_country", "Brasil")
	v.SetDefault("import.origin", "bulk_import")
	v.SetDefault("import.payment_method", "pix")
	v.SetDefault("import.payment_status", "pending")
	v.SetDefault("import.max_retries", 3)
	v.SetDefault("import.retry_backoff_millis", 2000)
	v.SetDefault("import.max_backoff_millis", 6000)
	v.SetDefault("import.inter_batch_delay_millis", 500)
	v.SetDefault("import.checkpoint_ttl_minutes", 60)
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

// Validate checks configuration invariants before a command runs.
func (c *Config) Validate() error {
	var problems []string

	if c.Store.Path == "" {
		problems = append(problems, "store.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if c.Import.MaxRetries < 0 || c.Import.MaxRetries > 10 {
		problems = append(problems, "import.max_retries must be between 0 and 10")
	}
	if c.Import.DefaultPrice < 0 {
		problems = append(problems, "import.default_price must be >= 0")
	}
	if c.Import.CheckpointTTLMinutes <= 0 {
		problems = append(problems, "import.checkpoint_ttl_minutes must be > 0")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
