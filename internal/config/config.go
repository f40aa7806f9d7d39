// Package config loads runtime settings for the avdata CLI.
//
// Settings come from, in increasing precedence: built-in defaults, an
// avdata.yaml config file (working directory or ~/.config/avdata), and
// AVDATA_* environment variables. Command-line flags override on top of
// the returned struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every runtime setting the workflows need.
type Config struct {
	// BaseURL is the remote directory the archives are published under.
	BaseURL string

	// DBPath is the location of the local SQLite store.
	DBPath string

	// TempDir holds downloads and extracted MDB files between steps.
	TempDir string

	// HTTPTimeout bounds each listing or download request.
	HTTPTimeout time.Duration

	// LogFile, when set, routes logs through a rotating file instead of
	// stderr.
	LogFile string
}

// Load reads configuration from all sources.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("base_url", "https://data.ntsb.gov/avdata")
	v.SetDefault("db_path", filepath.Join("data", "ntsb_aviation.db"))
	v.SetDefault("temp_dir", "temp")
	v.SetDefault("http_timeout", "5m")
	v.SetDefault("log_file", "")

	v.SetConfigName("avdata")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "avdata"))
	}

	v.SetEnvPrefix("AVDATA")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; defaults and environment apply.
	}

	cfg := &Config{
		BaseURL:     v.GetString("base_url"),
		DBPath:      v.GetString("db_path"),
		TempDir:     v.GetString("temp_dir"),
		HTTPTimeout: v.GetDuration("http_timeout"),
		LogFile:     v.GetString("log_file"),
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("http_timeout must be positive, got %q", v.GetString("http_timeout"))
	}
	return cfg, nil
}
