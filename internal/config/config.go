package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Log      LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds the admin API listener settings.
type ServerConfig struct {
	Addr string
}

// LogConfig holds zap settings.
type LogConfig struct {
	Level       string
	Encoding    string
	Development bool
}

// Load reads configuration from file and env. Env var overrides use prefix COURTAGE_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "courtage", "courtage.db"))
	v.SetDefault("server.addr", ":8087")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("COURTAGE_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "courtage"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("COURTAGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
