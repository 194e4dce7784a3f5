package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	Storage   string `mapstructure:"storage"`
	Database  string `mapstructure:"database"`
	Output    string `mapstructure:"output"`
	Jobs      int    `mapstructure:"jobs"`
	Verify    bool   `mapstructure:"verify"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Load initializes and loads configuration from file
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("storage", ".")
	v.SetDefault("database", "casc.db")
	v.SetDefault("output", "extracted")
	v.SetDefault("jobs", runtime.NumCPU())
	v.SetDefault("verify", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("casc")
	v.AutomaticEnv()

	// Config file handling
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName("casc")
		v.SetConfigType("yaml")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
