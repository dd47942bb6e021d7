// Package config holds the editor host's JSON configuration: engine launch
// parameters, mode transition command tables, control server and console
// toggles, logging, and the macro catalog. Values load from a config file
// with PRISM_* environment variables taking highest priority.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/prism-engine/editor-host/protocol"
)

type Config struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Engine   Engine   `json:"engine"`
	Commands Commands `json:"commands"`
	Server   Server   `json:"server"`
	Console  Console  `json:"console"`
	Logging  Logging  `json:"logging"`
	Macros   Macros   `json:"macros"`
}

// Engine configures the runtime process launch and supervision.
type Engine struct {
	Executable           string   `json:"executable" env:"PRISM_ENGINE_EXECUTABLE"`
	Args                 []string `json:"args" env:"PRISM_ENGINE_ARGS" envSeparator:","`
	WorkDir              string   `json:"work_dir" env:"PRISM_ENGINE_WORK_DIR"`
	DiscoveryIntervalMS  int      `json:"discovery_interval_ms" env:"PRISM_ENGINE_DISCOVERY_INTERVAL_MS"`
	MaxDiscoveryAttempts int      `json:"max_discovery_attempts" env:"PRISM_ENGINE_MAX_DISCOVERY_ATTEMPTS"`
	StopGraceMS          int      `json:"stop_grace_ms" env:"PRISM_ENGINE_STOP_GRACE_MS"`
	CloseTimeoutMS       int      `json:"close_timeout_ms" env:"PRISM_ENGINE_CLOSE_TIMEOUT_MS"`
	ConsoleHistory       int      `json:"console_history" env:"PRISM_ENGINE_CONSOLE_HISTORY"`
	WatchBinary          bool     `json:"watch_binary" env:"PRISM_ENGINE_WATCH_BINARY"`
}

func (e Engine) DiscoveryInterval() time.Duration {
	return time.Duration(e.DiscoveryIntervalMS) * time.Millisecond
}

func (e Engine) StopGrace() time.Duration {
	return time.Duration(e.StopGraceMS) * time.Millisecond
}

func (e Engine) CloseTimeout() time.Duration {
	return time.Duration(e.CloseTimeoutMS) * time.Millisecond
}

// Commands holds the protocol command sequences sent on mode transitions.
// The required ordering differs between engine builds, so both sequences
// stay configurable rather than hardcoded.
type Commands struct {
	EnterPlaying []string `json:"enter_playing" env:"PRISM_COMMANDS_ENTER_PLAYING" envSeparator:","`
	ExitPlaying  []string `json:"exit_playing" env:"PRISM_COMMANDS_EXIT_PLAYING" envSeparator:","`
}

// Server configures the HTTP control server.
type Server struct {
	Enabled bool   `json:"enabled" env:"PRISM_SERVER_ENABLED"`
	Host    string `json:"host" env:"PRISM_SERVER_HOST"`
	Port    int    `json:"port" env:"PRISM_SERVER_PORT"`
	Debug   bool   `json:"debug" env:"PRISM_SERVER_DEBUG"`
}

// Console configures the stdio operator console.
type Console struct {
	Enabled bool `json:"enabled" env:"PRISM_CONSOLE_ENABLED"`
}

type Logging struct {
	Level  string `json:"level" env:"PRISM_LOG_LEVEL"`
	Format string `json:"format" env:"PRISM_LOG_FORMAT"`
	Path   string `json:"path" env:"PRISM_LOG_PATH"`
}

// Macros configures the command macro catalog.
type Macros struct {
	Enabled                bool     `json:"enabled" env:"PRISM_MACROS_ENABLED"`
	Paths                  []string `json:"paths" env:"PRISM_MACRO_PATHS" envSeparator:","`
	AllowedRoots           []string `json:"allowed_roots" env:"PRISM_MACRO_ALLOWED_ROOTS" envSeparator:","`
	AutoReload             bool     `json:"auto_reload" env:"PRISM_MACROS_AUTO_RELOAD"`
	RejectUnknownArguments bool     `json:"reject_unknown_arguments" env:"PRISM_MACROS_REJECT_UNKNOWN_ARGUMENTS"`
}

// NewConfig returns the configuration defaults.
func NewConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return &Config{
		Name:    "prism-editor-host",
		Version: "0.1.0",
		Engine: Engine{
			Executable:           "",
			Args:                 []string{},
			WorkDir:              "",
			DiscoveryIntervalMS:  250,
			MaxDiscoveryAttempts: 120,
			StopGraceMS:          3000,
			CloseTimeoutMS:       2000,
			ConsoleHistory:       500,
			WatchBinary:          true,
		},
		Commands: Commands{
			EnterPlaying: []string{protocol.CmdResume, protocol.CmdGame, protocol.CmdPlay},
			ExitPlaying:  []string{protocol.CmdStop, protocol.CmdResume, protocol.CmdEdit},
		},
		Server: Server{
			Enabled: true,
			Host:    "localhost",
			Port:    9080,
			Debug:   false,
		},
		Console: Console{
			Enabled: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
			Path:   filepath.Join(home, ".prism-editor", "logs", "host.log"),
		},
		Macros: Macros{
			Enabled:                true,
			Paths:                  []string{},
			AllowedRoots:           []string{},
			AutoReload:             false,
			RejectUnknownArguments: false,
		},
	}
}

// LoadConfig reads the file at path over the defaults, applies environment
// overrides, then normalizes and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveConfig writes the configuration atomically: a temp file in the target
// directory followed by a rename, so a crash mid-write never truncates an
// existing config.
func SaveConfig(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %v", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Normalize canonicalizes config values so downstream validation and runtime
// logic operate on stable representations.
func (c *Config) Normalize() {
	c.Engine.Executable = strings.TrimSpace(c.Engine.Executable)
	c.Engine.WorkDir = strings.TrimSpace(c.Engine.WorkDir)
	c.Commands.EnterPlaying = normalizeCommandList(c.Commands.EnterPlaying)
	c.Commands.ExitPlaying = normalizeCommandList(c.Commands.ExitPlaying)
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Path = strings.TrimSpace(c.Logging.Path)
	c.Macros.Paths = normalizePaths(c.Macros.Paths)
	c.Macros.AllowedRoots = normalizePaths(c.Macros.AllowedRoots)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid port number")
	}

	if c.Server.Host == "" {
		return errors.New("host cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.New("invalid log level")
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.New("invalid log format")
	}

	if c.Logging.Path == "" {
		return errors.New("log path cannot be empty")
	}

	if c.Engine.DiscoveryIntervalMS < 50 || c.Engine.DiscoveryIntervalMS > 5000 {
		return fmt.Errorf("invalid discovery interval ms %d: expected range 50..5000", c.Engine.DiscoveryIntervalMS)
	}
	if c.Engine.MaxDiscoveryAttempts < 1 || c.Engine.MaxDiscoveryAttempts > 10000 {
		return fmt.Errorf("invalid max discovery attempts %d: expected range 1..10000", c.Engine.MaxDiscoveryAttempts)
	}
	if c.Engine.StopGraceMS < 0 || c.Engine.StopGraceMS > 60000 {
		return fmt.Errorf("invalid stop grace ms %d: expected range 0..60000", c.Engine.StopGraceMS)
	}
	if c.Engine.CloseTimeoutMS < 100 || c.Engine.CloseTimeoutMS > 60000 {
		return fmt.Errorf("invalid close timeout ms %d: expected range 100..60000", c.Engine.CloseTimeoutMS)
	}
	if c.Engine.ConsoleHistory < 10 || c.Engine.ConsoleHistory > 100000 {
		return fmt.Errorf("invalid console history %d: expected range 10..100000", c.Engine.ConsoleHistory)
	}

	if err := validateCommandList("enter_playing", c.Commands.EnterPlaying); err != nil {
		return err
	}
	if err := validateCommandList("exit_playing", c.Commands.ExitPlaying); err != nil {
		return err
	}

	return nil
}

func validateCommandList(name string, commands []string) error {
	if len(commands) == 0 {
		return fmt.Errorf("transition command list %s cannot be empty", name)
	}
	for i, command := range commands {
		if err := protocol.ValidateCommand(command); err != nil {
			return fmt.Errorf("transition command list %s entry %d: %w", name, i, err)
		}
	}
	return nil
}

// ResolveConfigPath returns the path that should be used for configuration.
func ResolveConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("PRISM_CONFIG_PATH")); path != "" {
		return path, nil
	}

	if _, err := os.Stat(filepath.Join("config", "prism.json")); err == nil {
		return filepath.Join("config", "prism.json"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".prism-editor", "config.json"), nil
}

// EnsureDefaultConfig creates a default config file if one does not exist.
func EnsureDefaultConfig(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path cannot be empty")
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	return SaveConfig(NewConfig(), path)
}

func normalizeCommandList(commands []string) []string {
	out := make([]string, 0, len(commands))
	for _, command := range commands {
		normalized := protocol.NormalizeCommand(command)
		if normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
