package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. It is read-only after
// Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// WorkerConfig contains the background rebuild-trigger worker's
// settings: how often it runs a full rebuild. The interval runs
// independently of any foreground-triggered rebuilds.
type WorkerConfig struct {
	RebuildInterval Duration `yaml:"rebuild_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SnapshotConfig contains optional S3-compatible export settings for
// rebuilt projection snapshots. Bucket empty means exporting is
// disabled.
type SnapshotConfig struct {
	Endpoint        string   `yaml:"endpoint"`
	Bucket          string   `yaml:"bucket"`
	AccessKeyID     string   `yaml:"-"` // env-only, never in YAML
	SecretAccessKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL          bool     `yaml:"use_ssl"`
	URLExpiry       Duration `yaml:"url_expiry"`
}

// Duration is a wrapper around time.Duration that supports YAML
// string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file →
// env vars. Returns an immutable Config suitable for concurrent read
// access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("LIFTLOG_CONFIG_PATH", "config/liftlogd.yaml")
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path. Used for
// testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/liftlogd.db",
		},
		Worker: WorkerConfig{
			RebuildInterval: Duration(1 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Snapshot: SnapshotConfig{
			UseSSL:    true,
			URLExpiry: Duration(15 * time.Minute),
		},
	}
}

func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the
// config. Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIFTLOG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LIFTLOG_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("LIFTLOG_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("LIFTLOG_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	if v := os.Getenv("LIFTLOG_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("LIFTLOG_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	if v := os.Getenv("LIFTLOG_REBUILD_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.RebuildInterval = Duration(d)
		}
	}

	if v := os.Getenv("LIFTLOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LIFTLOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	if v := os.Getenv("LIFTLOG_SNAPSHOT_ENDPOINT"); v != "" {
		cfg.Snapshot.Endpoint = v
	}
	if v := os.Getenv("LIFTLOG_SNAPSHOT_BUCKET"); v != "" {
		cfg.Snapshot.Bucket = v
	}
	if v := os.Getenv("LIFTLOG_SNAPSHOT_ACCESS_KEY_ID"); v != "" {
		cfg.Snapshot.AccessKeyID = v
	}
	if v := os.Getenv("LIFTLOG_SNAPSHOT_SECRET_ACCESS_KEY"); v != "" {
		cfg.Snapshot.SecretAccessKey = v
	}
}

// validate checks that required configuration values are set. In dev
// mode (LIFTLOG_DEV_MODE=true), API key validation is skipped.
func (c *Config) validate() error {
	if os.Getenv("LIFTLOG_DEV_MODE") == "true" {
		return nil
	}
	if c.Auth.APIKey == "" {
		return errors.New("LIFTLOG_API_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
