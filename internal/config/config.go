package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. Policy knobs (gap-fill
// bound, training window) live here and are passed into each stage
// explicitly, never read as ambient state.
type Config struct {
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// TransformConfig configures ingestion and timeline reconstruction.
type TransformConfig struct {
	DateColumn      string `yaml:"date_column" mapstructure:"date_column"`
	ProviderColumn  string `yaml:"provider_column" mapstructure:"provider_column"`
	MarketColumn    string `yaml:"market_column" mapstructure:"market_column"`
	SheetIndex      int    `yaml:"sheet_index" mapstructure:"sheet_index"`
	HeaderLookahead int    `yaml:"header_lookahead" mapstructure:"header_lookahead"`
	GapFillHours    int    `yaml:"gap_fill_hours" mapstructure:"gap_fill_hours"`
	Workers         int    `yaml:"workers" mapstructure:"workers"`
}

// NormalizeConfig configures the training window for leak-free
// standardization.
type NormalizeConfig struct {
	TrainStartYear int `yaml:"train_start_year" mapstructure:"train_start_year"`
	TrainEndYear   int `yaml:"train_end_year" mapstructure:"train_end_year"`
}

// AuditConfig configures the run audit store.
type AuditConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("POWERPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("transform.date_column", "Fecha")
	v.SetDefault("transform.provider_column", "Codigo Comercializador")
	v.SetDefault("transform.market_column", "Mercado")
	v.SetDefault("transform.sheet_index", 0)
	v.SetDefault("transform.header_lookahead", 10)
	v.SetDefault("transform.gap_fill_hours", 2)
	v.SetDefault("transform.workers", 4)
	v.SetDefault("normalize.train_start_year", 2020)
	v.SetDefault("normalize.train_end_year", 2022)
	v.SetDefault("audit.path", "powerprep.db")
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

// Validate checks the configuration for the given subcommand mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "transform":
		if c.Transform.DateColumn == "" || c.Transform.ProviderColumn == "" || c.Transform.MarketColumn == "" {
			problems = append(problems, "transform column names must not be empty")
		}
		if c.Transform.SheetIndex < 0 {
			problems = append(problems, "transform.sheet_index must be >= 0")
		}
		if c.Transform.HeaderLookahead < 1 {
			problems = append(problems, "transform.header_lookahead must be >= 1")
		}
		if c.Transform.GapFillHours < 0 {
			problems = append(problems, "transform.gap_fill_hours must be >= 0")
		}
		if c.Transform.Workers < 1 || c.Transform.Workers > 32 {
			problems = append(problems, "transform.workers must be between 1 and 32")
		}
	case "normalize":
		if c.Normalize.TrainStartYear <= 0 || c.Normalize.TrainEndYear <= 0 {
			problems = append(problems, "normalize training years must be set")
		}
		if c.Normalize.TrainStartYear > c.Normalize.TrainEndYear {
			problems = append(problems, "normalize.train_start_year must not be after train_end_year")
		}
	case "audit":
		if c.Audit.Path == "" {
			problems = append(problems, "audit.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
