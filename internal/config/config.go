// Package config loads yuvmetrics settings from an optional YAML file and
// YUVMETRICS_* environment variables.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "YUVMETRICS"

type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Compare   CompareConfig   `mapstructure:"compare"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json or text
	Output     string `mapstructure:"output"`   // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type CompareConfig struct {
	Threads       int    `mapstructure:"threads"`
	FrameLimit    int    `mapstructure:"frame_limit"` // 0 compares every frame
	PerFrame      bool   `mapstructure:"per_frame"`
	RealignChroma bool   `mapstructure:"realign_chroma"`
	Transfer      string `mapstructure:"transfer"` // empty leaves it unspecified
	Matrix        string `mapstructure:"matrix"`   // empty keeps BT.709
}

type TelemetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Path       string `mapstructure:"path"`
}

// Load reads configuration from configPath, which may be empty to use only
// defaults and the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults only hold plain values, so decoding cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)

	// Compare defaults
	v.SetDefault("compare.threads", runtime.NumCPU())
	v.SetDefault("compare.frame_limit", 0)
	v.SetDefault("compare.per_frame", false)
	v.SetDefault("compare.realign_chroma", true)
	v.SetDefault("compare.transfer", "")
	v.SetDefault("compare.matrix", "")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen_addr", "127.0.0.1:9464")
	v.SetDefault("telemetry.path", "/metrics")
}
