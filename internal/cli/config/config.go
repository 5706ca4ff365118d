// Package config loads service configuration from defaults, an optional
// YAML file and DOCRENDER_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/docrender/docrender/internal/logging"
	"github.com/docrender/docrender/internal/web/ratelimit"
)

const (
	// EnvPrefix prefixes every environment variable read by Load
	EnvPrefix = "DOCRENDER"
	// DefaultPort is used when neither a flag, a file nor the environment sets one
	DefaultPort = 8080
	// DefaultAssetsDir is used when no assets directory is given anywhere
	DefaultAssetsDir = "assets"
)

// Config represents the docrender configuration
type Config struct {
	AssetsDir string           `mapstructure:"assets_dir"`
	Server    ServerConfig     `mapstructure:"server"`
	Render    RenderConfig     `mapstructure:"render"`
	RateLimit ratelimit.Config `mapstructure:"ratelimit"`
	Log       logging.Config   `mapstructure:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// Pprof mounts /debug/pprof on the main listener
	Pprof bool `mapstructure:"pprof"`
}

// Address returns the listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RenderConfig represents rendering and archive configuration
type RenderConfig struct {
	// Workers bounds concurrent units within one batch
	Workers int `mapstructure:"workers"`
	// MaxConcurrent bounds renders across the whole process
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	ArchiveBufferSize int           `mapstructure:"archive_buffer_size"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
	MaxSteps          uint64        `mapstructure:"max_steps"`
	CompressionLevel  int           `mapstructure:"compression_level"`
	PDFCompression    bool          `mapstructure:"pdf_compression"`
	PageSize          string        `mapstructure:"page_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// LoadOptions carries command-line values that take part in resolution
type LoadOptions struct {
	// ConfigFile is an explicit config path; empty searches for docrender.yaml
	ConfigFile string
	// AssetsDir is the positional argument and beats every other source
	AssetsDir string
	// Port is the --port flag value, used as the default
	Port int
	// SearchPaths are the directories searched for docrender.yaml
	SearchPaths []string
}

// Load resolves the configuration.
// Precedence for the assets directory is argument, DOCRENDER_DIR, file, default;
// for the port it is DOCRENDER_PORT, file, --port.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v, opts)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("docrender")
		v.SetConfigType("yaml")
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{"."}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// DOCRENDER_DIR and DOCRENDER_PORT are the documented names; the nested forms also work
	if err := v.BindEnv("assets_dir", EnvPrefix+"_DIR", EnvPrefix+"_ASSETS_DIR"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("server.port", EnvPrefix+"_PORT", EnvPrefix+"_SERVER_PORT"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.AssetsDir != "" {
		v.Set("assets_dir", opts.AssetsDir)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, opts LoadOptions) {
	port := opts.Port
	if port <= 0 {
		port = DefaultPort
	}
	limits := ratelimit.DefaultConfig()
	logs := logging.DefaultConfig()

	v.SetDefault("assets_dir", DefaultAssetsDir)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", port)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.pprof", false)

	v.SetDefault("render.workers", 4)
	v.SetDefault("render.max_concurrent", 8)
	v.SetDefault("render.archive_buffer_size", 16*1024)
	v.SetDefault("render.max_body_bytes", 10<<20)
	v.SetDefault("render.max_steps", 10_000_000)
	v.SetDefault("render.compression_level", -1)
	v.SetDefault("render.pdf_compression", true)
	v.SetDefault("render.page_size", "A4")
	v.SetDefault("render.timeout", time.Duration(0))

	v.SetDefault("ratelimit.enabled", limits.Enabled)
	v.SetDefault("ratelimit.capacity", limits.Capacity)
	v.SetDefault("ratelimit.window", limits.Window)
	v.SetDefault("ratelimit.redis_addr", limits.RedisAddr)
	v.SetDefault("ratelimit.prefix", limits.Prefix)

	v.SetDefault("log.level", logs.Level)
	v.SetDefault("log.format", logs.Format)
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.AssetsDir == "" {
		return fmt.Errorf("assets_dir must not be empty")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", c.Server.Port)
	}
	if c.Render.Workers <= 0 {
		return fmt.Errorf("render.workers must be greater than 0, got: %d", c.Render.Workers)
	}
	if c.Render.MaxConcurrent <= 0 {
		return fmt.Errorf("render.max_concurrent must be greater than 0, got: %d", c.Render.MaxConcurrent)
	}
	if c.Render.ArchiveBufferSize <= 0 {
		return fmt.Errorf("render.archive_buffer_size must be greater than 0, got: %d", c.Render.ArchiveBufferSize)
	}
	if c.Render.CompressionLevel < -2 || c.Render.CompressionLevel > 9 {
		return fmt.Errorf("render.compression_level must be between -2 and 9, got: %d", c.Render.CompressionLevel)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("ratelimit.capacity and ratelimit.window must be positive when enabled")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
