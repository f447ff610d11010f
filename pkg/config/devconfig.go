// Package config resolves developer configuration for the plugkit CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// LocalConfigFile is the project-local developer config filename.
	// It holds per-project overrides and is not committed.
	LocalConfigFile = "plugkit.local.toml"

	// globalConfigDir is the directory under $HOME holding global
	// configuration.
	globalConfigDir = ".plugkit"
)

// DevConfig holds developer-specific configuration. It is resolved
// with Viper precedence: CLI flags > plugkit.local.toml (project-local)
// > ~/.plugkit/config.toml (global).
type DevConfig struct {
	// Token is the default access token for private repositories.
	Token string `toml:"token" mapstructure:"token"`

	// ServerURL points at the platform's file-content service.
	ServerURL string `toml:"server_url" mapstructure:"server_url"`
}

// LoadDevConfig resolves developer configuration. flagToken, if
// non-empty, takes highest precedence (set via --token).
func LoadDevConfig(flagToken string) (*DevConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	globalPath := filepath.Join(home, globalConfigDir, "config.toml")
	return loadDevConfig(flagToken, globalPath, LocalConfigFile)
}

// loadDevConfig is the internal implementation that accepts explicit
// paths, making it testable without touching the real home directory.
func loadDevConfig(flagToken, globalPath, localPath string) (*DevConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")

	// Lowest priority: global config; ignore if missing.
	v.SetConfigFile(globalPath)
	_ = v.ReadInConfig()

	// Higher priority: project-local config.
	if _, err := os.Stat(localPath); err == nil {
		v.SetConfigFile(localPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
	}

	// Highest priority: CLI flags.
	if flagToken != "" {
		v.Set("token", flagToken)
	}

	cfg := &DevConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling dev config: %w", err)
	}

	return cfg, nil
}

// GlobalConfigDir returns the path to ~/.plugkit, creating it if
// necessary.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	dir := filepath.Join(home, globalConfigDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

// WriteGlobalDevConfig persists developer config to
// ~/.plugkit/config.toml. The file is created owner-readable only
// since it may hold a token.
func WriteGlobalDevConfig(cfg *DevConfig) error {
	dir, err := GlobalConfigDir()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling dev config: %w", err)
	}

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
