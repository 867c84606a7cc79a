package astrodb

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/hupe1980/astrodb/codec"
	"github.com/hupe1980/astrodb/resource"
)

// Config is the YAML configuration for a library and its database,
// loaded with [LoadConfig].
type Config struct {
	Library struct {
		Host       string `mapstructure:"host"`
		RemotePath string `mapstructure:"remote_path"`
		LocalRoot  string `mapstructure:"local_root"`
	} `mapstructure:"library"`

	Database struct {
		Depth         int `mapstructure:"depth"`
		TableCapacity int `mapstructure:"table_capacity"`
	} `mapstructure:"database"`

	Import struct {
		Compression      bool  `mapstructure:"compression"`
		MaxConcurrent    int64 `mapstructure:"max_concurrent"`
		IOBytesPerSec    int64 `mapstructure:"io_bytes_per_sec"`
		MemoryLimitBytes int64 `mapstructure:"memory_limit_bytes"`
	} `mapstructure:"import"`

	Cache struct {
		CapacityBytes     int64  `mapstructure:"capacity_bytes"`
		DiskDir           string `mapstructure:"disk_dir"`
		DiskCapacityBytes int64  `mapstructure:"disk_capacity_bytes"`
	} `mapstructure:"cache"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Codec string `mapstructure:"codec"`
}

// LoadConfig reads and unmarshals a YAML config file.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Options translates the config into library options. Zero values
// translate into the library defaults.
func (c *Config) Options() ([]Option, error) {
	var opts []Option

	if c.Codec != "" {
		cd, ok := codec.ByName(c.Codec)
		if !ok {
			return nil, &ErrConstraint{Reason: fmt.Sprintf("unknown codec %q", c.Codec)}
		}
		opts = append(opts, WithCodec(cd))
	}

	if c.Log.Level != "" || c.Log.Format != "" {
		level, err := parseLogLevel(c.Log.Level)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(c.Log.Format) {
		case "", "text":
			opts = append(opts, WithLogger(NewTextLogger(level)))
		case "json":
			opts = append(opts, WithLogger(NewJSONLogger(level)))
		default:
			return nil, &ErrConstraint{Reason: fmt.Sprintf("unknown log format %q", c.Log.Format)}
		}
	}

	if c.Import.Compression {
		opts = append(opts, WithCompression(true))
	}

	if c.Import.MaxConcurrent > 0 || c.Import.IOBytesPerSec > 0 || c.Import.MemoryLimitBytes > 0 {
		opts = append(opts, WithResourceConfig(resource.Config{
			MemoryLimitBytes:     c.Import.MemoryLimitBytes,
			MaxBackgroundWorkers: c.Import.MaxConcurrent,
			IOLimitBytesPerSec:   c.Import.IOBytesPerSec,
		}))
	}

	if c.Cache.CapacityBytes > 0 {
		opts = append(opts, WithBlockCache(c.Cache.CapacityBytes))
	}
	if c.Cache.DiskDir != "" && c.Cache.DiskCapacityBytes > 0 {
		opts = append(opts, WithDiskCache(c.Cache.DiskDir, c.Cache.DiskCapacityBytes))
	}

	return opts, nil
}

// OpenFromConfig opens a library and a database from a YAML config
// file. Extra options are applied after the config's, so they win on
// conflict.
func OpenFromConfig(path string, extra ...Option) (*Library, *Database, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	opts, err := cfg.Options()
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, extra...)

	lib, err := OpenLibrary(cfg.Library.Host, cfg.Library.RemotePath, cfg.Library.LocalRoot, opts...)
	if err != nil {
		return nil, nil, err
	}

	depth := cfg.Database.Depth
	if depth == 0 {
		depth = DefaultDepth
	}
	capacity := cfg.Database.TableCapacity
	if capacity == 0 {
		capacity = DefaultTableCapacity
	}

	db, err := NewDatabase(lib, depth, capacity)
	if err != nil {
		_ = lib.Close()
		return nil, nil, err
	}

	return lib, db, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, &ErrConstraint{Reason: fmt.Sprintf("unknown log level %q", s)}
	}
}
