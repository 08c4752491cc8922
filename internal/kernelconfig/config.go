// Package kernelconfig loads the demo CLI's configuration: storage root,
// log level, and strict-load mode. The kernel itself takes these as
// constructor parameters (spec.md §9: "the storage root is the only piece of
// global configuration... an implementation should take it as a parameter to
// Kernel::new rather than hard-coding it") — this package exists purely to
// resolve that parameter from flags, environment, and a config file before
// main hands it to kernel.New, the way the teacher-adjacent ktl CLI resolves
// its own config.Options via viper before constructing its services.
package kernelconfig

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the resolved demo-CLI configuration.
type Config struct {
	// StoreDir is the kernel's storage root (spec.md §6, default "kernel_store").
	StoreDir string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// StrictLoad enables the State Store's rehash-on-load verification.
	StrictLoad bool
}

// Load resolves configuration with precedence flag > KERNEL_* environment
// variable > config file > default, mirroring the ktl CLI's bindViper
// pattern (flags win, then env, then file, then the built-in defaults set
// below: "kernel_store", "info", false).
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	v.SetEnvPrefix("KERNEL")
	v.AutomaticEnv()
	v.SetDefault("store_dir", "kernel_store")
	v.SetDefault("log_level", "info")
	v.SetDefault("strict_load", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return Config{}, err
			}
		}
	}

	return Config{
		StoreDir:   v.GetString("store_dir"),
		LogLevel:   v.GetString("log_level"),
		StrictLoad: v.GetBool("strict_load"),
	}, nil
}

// NewLogger builds a zap.Logger at the configured level, production-encoded
// except in debug mode where it switches to the development encoder for
// readability, matching the level-to-encoder branching in the ktl CLI's
// internal/logging.New.
func NewLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	if zapLevel == zapcore.DebugLevel {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}
