package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// OAuthConfig holds the Google OAuth2 client settings.
type OAuthConfig struct {
	// ClientID is the OAuth2 client identifier. Falls back to the
	// CLIENT_ID environment variable when unset in the config file.
	ClientID string `mapstructure:"client_id" yaml:"client_id"`

	// ClientSecret is the OAuth2 client secret. Falls back to the
	// CLIENT_SECRET environment variable when unset in the config file.
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// SyncConfig controls the fetch-and-persist engine.
type SyncConfig struct {
	// MaxResults is the default page size for a sync run.
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`

	// FetchConcurrency caps how many message detail fetches run in
	// parallel within one sync call.
	FetchConcurrency int `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
}

// ListenerConfig controls the loopback OAuth callback listener.
type ListenerConfig struct {
	// TimeoutSec bounds how long a pending flow waits for the redirect.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// GraceSec is how long the listener stays up after serving the
	// success page, so the browser's auto-close script can run.
	GraceSec int `mapstructure:"grace_sec" yaml:"grace_sec"`
}

// ServerConfig holds the UI-facing HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	OAuth    OAuthConfig    `mapstructure:"oauth" yaml:"oauth"`
	DBPath   string         `mapstructure:"db_path" yaml:"db_path"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Listener ListenerConfig `mapstructure:"listener" yaml:"listener"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailvault/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailvault", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		DBPath: defaultDBPath(),
		Sync: SyncConfig{
			MaxResults:       100,
			FetchConcurrency: 8,
		},
		Listener: ListenerConfig{
			TimeoutSec: 180,
			GraceSec:   6,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8264",
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "emails.db")
	}
	return filepath.Join(home, ".local", "share", "mailvault", "emails.db")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration. OAuth
// client credentials absent from the file are taken from the CLIENT_ID and
// CLIENT_SECRET environment variables.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("db_path", defaultDBPath())
	v.SetDefault("sync.max_results", 100)
	v.SetDefault("sync.fetch_concurrency", 8)
	v.SetDefault("listener.timeout_sec", 180)
	v.SetDefault("listener.grace_sec", 6)
	v.SetDefault("server.addr", "127.0.0.1:8264")

	cfg := defaultAppConfig()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			applyEnvCredentials(cfg)
			return cfg, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			applyEnvCredentials(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvCredentials(cfg)
	return cfg, nil
}

// applyEnvCredentials fills OAuth client credentials from the environment
// when the config file leaves them empty.
func applyEnvCredentials(cfg *AppConfig) {
	if cfg.OAuth.ClientID == "" {
		cfg.OAuth.ClientID = os.Getenv("CLIENT_ID")
	}
	if cfg.OAuth.ClientSecret == "" {
		cfg.OAuth.ClientSecret = os.Getenv("CLIENT_SECRET")
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("oauth", cfg.OAuth)
	v.Set("db_path", cfg.DBPath)
	v.Set("sync", cfg.Sync)
	v.Set("listener", cfg.Listener)
	v.Set("server", cfg.Server)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
