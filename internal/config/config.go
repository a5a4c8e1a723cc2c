package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the relay.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Platforms PlatformsConfig `json:"platforms" yaml:"platforms"`
	AI        AIConfig        `json:"ai" yaml:"ai"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Relay     RelayConfig     `json:"relay" yaml:"relay"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

type PlatformsConfig struct {
	Telegram PlatformConfig `json:"telegram" yaml:"telegram"`
	Bale     PlatformConfig `json:"bale" yaml:"bale"`
}

// PlatformConfig holds per-platform API settings. Bot tokens are NOT here:
// they are per-tenant and live in the credential store.
type PlatformConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
}

type AIConfig struct {
	CloudBase          string `json:"cloudBase" yaml:"cloudBase"`
	LocalBase          string `json:"localBase,omitempty" yaml:"localBase,omitempty"`
	APIKey             string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	IdleTimeoutSeconds int    `json:"idleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
}

type StoreConfig struct {
	DBPath                 string `json:"dbPath" yaml:"dbPath"`
	CredentialCacheSeconds int    `json:"credentialCacheSeconds" yaml:"credentialCacheSeconds"`
}

type RelayConfig struct {
	MaxConcurrentUpdates int    `json:"maxConcurrentUpdates" yaml:"maxConcurrentUpdates"`
	FlushThreshold       int    `json:"flushThreshold" yaml:"flushThreshold"`
	FallbackMessage      string `json:"fallbackMessage,omitempty" yaml:"fallbackMessage,omitempty"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.botrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".botrelay"
	}
	return filepath.Join(home, ".botrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a config file (.json, .yaml or .yml), expands environment
// variables and paths, and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}

	if !cfg.Platforms.Telegram.Enabled && !cfg.Platforms.Bale.Enabled {
		errs = append(errs, "at least one platform must be enabled")
	}

	if cfg.AI.CloudBase == "" {
		errs = append(errs, "ai.cloudBase is required")
	}
	if cfg.AI.IdleTimeoutSeconds < 1 {
		errs = append(errs, "ai.idleTimeoutSeconds must be >= 1")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}
	if cfg.Store.CredentialCacheSeconds < 0 {
		errs = append(errs, "store.credentialCacheSeconds must be >= 0")
	}

	if cfg.Relay.MaxConcurrentUpdates < 1 || cfg.Relay.MaxConcurrentUpdates > 1024 {
		errs = append(errs, "relay.maxConcurrentUpdates must be between 1 and 1024")
	}
	if cfg.Relay.FlushThreshold < 1 {
		errs = append(errs, "relay.flushThreshold must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
