/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults
  2. YAML file (optional, path given by -config)
  3. .env file in the working directory (optional)
  4. Environment variables with the BURN_ prefix
  5. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  BURN_PORT               HTTP port
  BURN_DB_PATH            SQLite path, ":memory:" for in-memory
  BURN_SECTOR_ID          Default sector when a request carries none
  BURN_LOG_LEVEL          debug | info | warn | error
  BURN_LOG_FORMAT         json | console
  BURN_SNAPSHOT_ENABLED   true | false
  BURN_SNAPSHOT_INTERVAL  Go duration, e.g. "1h"
  BURN_ALLOWED_ORIGINS    Comma-separated CORS origins
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sector   SectorConfig   `mapstructure:"sector"`
	Log      LogConfig      `mapstructure:"log"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SectorConfig holds the sector used when a request names none.
type SectorConfig struct {
	DefaultID string `mapstructure:"default_id"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SnapshotConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: "burn.db"},
		Sector:   SectorConfig{DefaultID: "default"},
		Log:      LogConfig{Level: "info", Format: "json"},
		Snapshot: SnapshotConfig{Enabled: true, Interval: time.Hour},
	}
}

// Load builds the configuration from defaults, an optional YAML file, an
// optional .env file and the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("BURN")
	v.AutomaticEnv()
	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.AllowedOrigins = trimAll(cfg.Server.AllowedOrigins)
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("sector.default_id", d.Sector.DefaultID)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("snapshot.enabled", d.Snapshot.Enabled)
	v.SetDefault("snapshot.interval", d.Snapshot.Interval)
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "BURN_PORT")
	v.BindEnv("server.allowed_origins", "BURN_ALLOWED_ORIGINS")

	// Storage
	v.BindEnv("database.path", "BURN_DB_PATH")
	v.BindEnv("sector.default_id", "BURN_SECTOR_ID")

	// Logging
	v.BindEnv("log.level", "BURN_LOG_LEVEL")
	v.BindEnv("log.format", "BURN_LOG_FORMAT")

	// Snapshots
	v.BindEnv("snapshot.enabled", "BURN_SNAPSHOT_ENABLED")
	v.BindEnv("snapshot.interval", "BURN_SNAPSHOT_INTERVAL")
}

// trimAll drops blanks left by comma-separated env values.
func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	case c.Database.Path == "":
		return errors.New("database path is required")
	case c.Sector.DefaultID == "":
		return errors.New("default sector id is required")
	case c.Snapshot.Enabled && c.Snapshot.Interval <= 0:
		return errors.New("snapshot interval must be positive")
	}
	return nil
}
