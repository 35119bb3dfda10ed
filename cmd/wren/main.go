package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.wren/config.toml.
type Config struct {
	Server ConfigServer `toml:"server"`
	Auth   ConfigAuth   `toml:"auth"`
}

// ConfigServer holds backend connection settings.
type ConfigServer struct {
	BaseURL string `toml:"base_url"`
}

// ConfigAuth holds the stored identity.
type ConfigAuth struct {
	UserID   string `toml:"user_id"`
	Username string `toml:"username"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.wren, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".wren")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "server.base_url").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. server.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "server":
		switch field {
		case "base_url":
			cfg.Server.BaseURL = value
		default:
			return fmt.Errorf("unknown field %q in section [server]", field)
		}
	case "auth":
		switch field {
		case "user_id":
			cfg.Auth.UserID = value
		case "username":
			cfg.Auth.Username = value
		default:
			return fmt.Errorf("unknown field %q in section [auth]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: server, auth)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "wren",
	Short: "Wren chat CLI",
	Long:  "Command-line client for a Wren chat backend.\nManage configuration and rooms, inspect unread state, and chat interactively.",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log protocol activity to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
