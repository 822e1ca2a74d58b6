package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a secret from a file path specified by an env var with
// _FILE suffix. If FOO is already set directly, the file is skipped.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	API     APIConfig
	Storage StorageConfig
	Log     LogConfig
}

type APIConfig struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

type StorageConfig struct {
	// Dir is where batch snapshots are written. Empty disables persistence.
	Dir string
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	readSecret("INFINITY_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	_ = viper.BindEnv("api.base_url", "INFINITY_SERVER")
	_ = viper.BindEnv("api.token", "INFINITY_TOKEN")
	_ = viper.BindEnv("api.timeout", "INFINITY_TIMEOUT")
	_ = viper.BindEnv("storage.dir", "INFINITY_STORAGE_DIR")
	_ = viper.BindEnv("log.level", "LOG_LEVEL")

	viper.SetDefault("api.base_url", "https://api.toinfinity.ai")
	viper.SetDefault("api.timeout", 120)
	viper.SetDefault("storage.dir", "batches")
	viper.SetDefault("log.level", "info")

	// Config file is optional
	_ = viper.ReadInConfig()

	cfg := &Config{
		API: APIConfig{
			BaseURL:        viper.GetString("api.base_url"),
			Token:          viper.GetString("api.token"),
			TimeoutSeconds: viper.GetInt("api.timeout"),
		},
		Storage: StorageConfig{
			Dir: viper.GetString("storage.dir"),
		},
		Log: LogConfig{
			Level: viper.GetString("log.level"),
		},
	}
	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url must not be empty")
	}
	return cfg, nil
}
