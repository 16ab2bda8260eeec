package config

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/proxsuit/internal/raster"
)

// Config holds the full application configuration.
type Config struct {
	Raster  RasterConfig  `yaml:"raster" mapstructure:"raster"`
	Scratch ScratchConfig `yaml:"scratch" mapstructure:"scratch"`
	Layer   LayerConfig   `yaml:"layer" mapstructure:"layer"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// RasterConfig is the raster environment: cell size, extent and mask.
// Zero values fall back to the defaults derived from the input layers.
type RasterConfig struct {
	CellSize float64 `yaml:"cell_size" mapstructure:"cell_size"`
	// Extent is "xmin,ymin,xmax,ymax"; empty means the union of both layers.
	Extent  string `yaml:"extent" mapstructure:"extent"`
	Mask    string `yaml:"mask" mapstructure:"mask"`
	Workers int    `yaml:"workers" mapstructure:"workers"`
}

// ScratchConfig locates the intermediate workspace.
type ScratchConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LayerConfig configures layer readers.
type LayerConfig struct {
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ReportConfig configures the optional run report.
type ReportConfig struct {
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
	v.SetEnvPrefix("PROXSUIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("raster.cell_size", 0.0)
	v.SetDefault("raster.extent", "")
	v.SetDefault("raster.mask", "")
	v.SetDefault("raster.workers", 0)
	v.SetDefault("scratch.dir", "")
	v.SetDefault("layer.temp_dir", "")
	v.SetDefault("report.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by type decoding.
func (c *Config) Validate() error {
	if c.Raster.CellSize < 0 {
		return eris.Errorf("config: raster.cell_size must be positive, got %v", c.Raster.CellSize)
	}
	if c.Raster.Workers < 0 {
		return eris.Errorf("config: raster.workers must not be negative, got %d", c.Raster.Workers)
	}
	if _, err := ParseExtent(c.Raster.Extent); err != nil {
		return err
	}
	return nil
}

// ParseExtent parses "xmin,ymin,xmax,ymax". An empty string returns nil.
func ParseExtent(s string) (*raster.Extent, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	if len(parts) != 4 {
		return nil, eris.Errorf("config: extent %q needs xmin,ymin,xmax,ymax", s)
	}

	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "config: extent value %q", p)
		}
		vals[i] = f
	}

	e := raster.Extent{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	if !e.Valid() {
		return nil, eris.Errorf("config: extent %q is not ordered min before max", s)
	}
	return &e, nil
}

// InitLogger replaces the global zap logger. "console" (the default) writes
// human-readable lines to stderr without stack traces; "json" writes
// production JSON for log shipping.
func InitLogger(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "", "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.DisableStacktrace = true
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	case "json":
		zapCfg = zap.NewProductionConfig()
	default:
		return eris.Errorf("config: unknown log format %q (want console or json)", cfg.Format)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.InitialFields = map[string]any{"app": "proxsuit"}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
