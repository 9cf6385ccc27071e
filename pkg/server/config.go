package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server ServerSection `toml:"server"`
	Limits LimitsSection `toml:"limits"`
}

type ServerSection struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	MetricsPort  int    `toml:"metrics_port"` // 0 = disabled
	DatabasePath string `toml:"database_path"`
}

type LimitsSection struct {
	MaxMessageLength  int `toml:"max_message_length"`
	HistoryLimit      int `toml:"history_limit"`
	SessionTokenBytes int `toml:"session_token_bytes"`
}

// ServerConfig holds the runtime server configuration
type ServerConfig struct {
	Host              string
	Port              int
	MetricsPort       int
	MaxMessageLength  int
	HistoryLimit      int
	SessionTokenBytes int
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	return TOMLConfig{
		Server: ServerSection{
			Host:         "",
			Port:         8087,
			MetricsPort:  9090, // internal only - never expose publicly
			DatabasePath: "~/.mensageiro/mensageiro.db",
		},
		Limits: LimitsSection{
			MaxMessageLength:  4096,
			HistoryLimit:      100,
			SessionTokenBytes: 24,
		},
	}
}

// DefaultConfig returns the default runtime configuration
func DefaultConfig() ServerConfig {
	return DefaultTOMLConfig().ToServerConfig()
}

// ToServerConfig converts the file representation into the runtime one.
func (c TOMLConfig) ToServerConfig() ServerConfig {
	return ServerConfig{
		Host:              c.Server.Host,
		Port:              c.Server.Port,
		MetricsPort:       c.Server.MetricsPort,
		MaxMessageLength:  c.Limits.MaxMessageLength,
		HistoryLimit:      c.Limits.HistoryLimit,
		SessionTokenBytes: c.Limits.SessionTokenBytes,
	}
}

// LoadConfig loads configuration from a TOML file, creates a default
// one if not found, and applies environment variable overrides
func LoadConfig(path string) (TOMLConfig, error) {
	path, err := ExpandPath(path)
	if err != nil {
		return TOMLConfig{}, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := DefaultTOMLConfig()
		// Best effort: if the default can't be written (permissions),
		// still run with defaults.
		_ = writeDefaultConfig(path, config)
		return applyEnvOverrides(config), nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return applyEnvOverrides(config), nil
}

func writeDefaultConfig(path string, config TOMLConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(config)
}

// applyEnvOverrides applies environment variable overrides to the
// config. Variables follow the pattern MENSAGEIRO_SECTION_KEY, e.g.
// MENSAGEIRO_SERVER_PORT=9000.
func applyEnvOverrides(config TOMLConfig) TOMLConfig {
	if val := os.Getenv("MENSAGEIRO_SERVER_HOST"); val != "" {
		config.Server.Host = val
	}
	if val := os.Getenv("MENSAGEIRO_SERVER_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.Port = port
		}
	}
	if val := os.Getenv("MENSAGEIRO_SERVER_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Server.MetricsPort = port
		}
	}
	if val := os.Getenv("MENSAGEIRO_SERVER_DATABASE_PATH"); val != "" {
		config.Server.DatabasePath = val
	}
	if val := os.Getenv("MENSAGEIRO_LIMITS_MAX_MESSAGE_LENGTH"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.MaxMessageLength = limit
		}
	}
	if val := os.Getenv("MENSAGEIRO_LIMITS_HISTORY_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			config.Limits.HistoryLimit = limit
		}
	}
	return config
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(homeDir, path[2:]), nil
	}
	return path, nil
}
