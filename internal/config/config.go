package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds user preferences
type Config struct {
	DBPath        string `yaml:"db_path" mapstructure:"db_path"`               // Local note database
	ConfirmDelete bool   `yaml:"confirm_delete" mapstructure:"confirm_delete"` // Require confirmation for delete

	// Logging configuration
	LogLevel   string `yaml:"log_level" mapstructure:"log_level"`     // Log level: DEBUG, INFO, WARN, ERROR
	LogFile    string `yaml:"log_file" mapstructure:"log_file"`       // Path to log file
	LogConsole bool   `yaml:"log_console" mapstructure:"log_console"` // Enable console logging

	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`
}

// SyncConfig configures the remote sync engine
type SyncConfig struct {
	ServerURL    string        `yaml:"server_url" mapstructure:"server_url"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	BatchSize    int           `yaml:"batch_size" mapstructure:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// Dir returns ~/.ironnotes
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ironnotes")
}

// Path returns the config file location
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns default settings
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		DBPath:        filepath.Join(dir, "notes.db"),
		ConfirmDelete: true,
		LogLevel:      "INFO",
		LogFile:       filepath.Join(dir, "logs", "ironnotes.log"),
		LogConsole:    false,
		Sync: SyncConfig{
			ServerURL:    "http://localhost:8080",
			Timeout:      30 * time.Second,
			BatchSize:    10,
			PollInterval: 30 * time.Second,
			Debounce:     5 * time.Second,
		},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("confirm_delete", cfg.ConfirmDelete)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_console", cfg.LogConsole)
	v.SetDefault("sync.server_url", cfg.Sync.ServerURL)
	v.SetDefault("sync.timeout", cfg.Sync.Timeout)
	v.SetDefault("sync.batch_size", cfg.Sync.BatchSize)
	v.SetDefault("sync.poll_interval", cfg.Sync.PollInterval)
	v.SetDefault("sync.debounce", cfg.Sync.Debounce)
}

// Load loads config from ~/.ironnotes/config.yaml with IRONNOTES_* overrides
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile loads config from path. A missing file yields defaults plus env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("IRONNOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Sync.BatchSize <= 0 {
		cfg.Sync.BatchSize = 10
	}

	return cfg, nil
}

// Save saves config to ~/.ironnotes/config.yaml
func (c *Config) Save() error {
	return c.SaveFile(Path())
}

// SaveFile writes the config as YAML to path
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ServerConfig configures the reference remote service
type ServerConfig struct {
	Port            string
	DatabaseURL     string // empty selects the in-memory store
	RateLimitPerMin int
	SessionTTL      time.Duration
}

// LoadServer reads server settings from the environment
func LoadServer() *ServerConfig {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("RATE_LIMIT_PER_MIN", 600)
	v.SetDefault("SESSION_TTL", 30*24*time.Hour)

	return &ServerConfig{
		Port:            v.GetString("PORT"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		RateLimitPerMin: v.GetInt("RATE_LIMIT_PER_MIN"),
		SessionTTL:      v.GetDuration("SESSION_TTL"),
	}
}
