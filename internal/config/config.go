package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CatalogConfig holds the remote podcast directory settings
type CatalogConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Country           string        `mapstructure:"country"` // storefront, e.g. "us"
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// CacheConfig holds local store settings
type CacheConfig struct {
	Dir                  string        `mapstructure:"dir"` // empty keeps nothing across runs
	Staleness            time.Duration `mapstructure:"staleness"`
	EpisodeRetentionDays int           `mapstructure:"episode_retention_days"` // 0 keeps forever
}

// PlaybackConfig holds session coordinator settings
type PlaybackConfig struct {
	UIRefreshInterval time.Duration `mapstructure:"ui_refresh_interval"`
	HistoryDebounce   time.Duration `mapstructure:"history_debounce"`
	ProgressInterval  time.Duration `mapstructure:"progress_interval"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectMin      time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
}

// EngineConfig holds the background player settings
type EngineConfig struct {
	Command        string        `mapstructure:"command"`
	Args           []string      `mapstructure:"args"`
	Socket         string        `mapstructure:"socket"` // empty uses a socket in the temp dir
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:           "https://itunes.apple.com",
			Country:           "us",
			Timeout:           10 * time.Second,
			RequestsPerMinute: 20,
		},
		Cache: CacheConfig{
			Dir:                  defaultDataPath("cache"),
			Staleness:            time.Hour,
			EpisodeRetentionDays: 30,
		},
		Playback: PlaybackConfig{
			UIRefreshInterval: 500 * time.Millisecond,
			HistoryDebounce:   5 * time.Second,
			ProgressInterval:  15 * time.Second,
			ReconnectAttempts: 5,
			ReconnectMin:      time.Second,
			ReconnectMax:      16 * time.Second,
		},
		Engine: EngineConfig{
			Command:        "mpv",
			Args:           []string{},
			ConnectTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			File:  defaultDataPath("podcastapp.log"),
			Level: "INFO",
		},
	}
}

// defaultDataPath returns a path under the per-user data directory
func defaultDataPath(name string) string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "podcastapp", name)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "podcastapp", name)
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "podcastapp")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "podcastapp")
	}
}

// LoadConfig loads configuration from file and environment. An empty path
// searches the default locations; a missing file there is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. PODCASTAPP_CATALOG_COUNTRY
	v.SetEnvPrefix("PODCASTAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("catalog.base_url", cfg.Catalog.BaseURL)
	v.SetDefault("catalog.country", cfg.Catalog.Country)
	v.SetDefault("catalog.timeout", cfg.Catalog.Timeout)
	v.SetDefault("catalog.requests_per_minute", cfg.Catalog.RequestsPerMinute)

	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.staleness", cfg.Cache.Staleness)
	v.SetDefault("cache.episode_retention_days", cfg.Cache.EpisodeRetentionDays)

	v.SetDefault("playback.ui_refresh_interval", cfg.Playback.UIRefreshInterval)
	v.SetDefault("playback.history_debounce", cfg.Playback.HistoryDebounce)
	v.SetDefault("playback.progress_interval", cfg.Playback.ProgressInterval)
	v.SetDefault("playback.reconnect_attempts", cfg.Playback.ReconnectAttempts)
	v.SetDefault("playback.reconnect_min", cfg.Playback.ReconnectMin)
	v.SetDefault("playback.reconnect_max", cfg.Playback.ReconnectMax)

	v.SetDefault("engine.command", cfg.Engine.Command)
	v.SetDefault("engine.args", cfg.Engine.Args)
	v.SetDefault("engine.socket", cfg.Engine.Socket)
	v.SetDefault("engine.connect_timeout", cfg.Engine.ConnectTimeout)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
}

// Validate rejects settings the services cannot run with
func (c *Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Catalog.RequestsPerMinute < 0 {
		return fmt.Errorf("catalog.requests_per_minute must not be negative")
	}
	if c.Cache.EpisodeRetentionDays < 0 {
		return fmt.Errorf("cache.episode_retention_days must not be negative")
	}
	if c.Playback.ReconnectMax > 0 && c.Playback.ReconnectMax < c.Playback.ReconnectMin {
		return fmt.Errorf("playback.reconnect_max must be at least reconnect_min")
	}
	return nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
