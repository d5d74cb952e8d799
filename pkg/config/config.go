// Package config provides configuration management for the log server:
// JSON configuration files, environment variable overrides and validation
// with helpful error messages.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (LOGTREE_*)
//  2. Configuration file (JSON format)
//  3. Default values
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// InputConfig selects where producer byte streams come from.
type InputConfig struct {
	// Mode is "stdin" or "socket".
	Mode string `json:"mode"`
	// ListenAddr is the TCP address accepted in socket mode.
	ListenAddr string `json:"listen_addr"`
}

// TreeConfig controls the terminal tree renderer sink.
type TreeConfig struct {
	Enabled   bool `json:"enabled"`
	Condensed bool `json:"condensed"`
	BatchSize int  `json:"batch_size"`
}

// WriterConfig controls the plain line-writer sink.
type WriterConfig struct {
	Enabled bool `json:"enabled"`
	// Path is an output file; empty means standard output.
	Path string `json:"path"`
}

// PostgresConfig controls the SQL sink.
type PostgresConfig struct {
	Enabled        bool   `json:"enabled"`
	ConnString     string `json:"conn_string"`
	MigrationsPath string `json:"migrations_path"`
	BatchSize      int    `json:"batch_size"`
}

// MonitorConfig controls the HTTP status endpoint.
type MonitorConfig struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr"`
}

// LoggingConfig controls the server's own diagnostic output.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the complete log server configuration.
type Config struct {
	Input InputConfig `json:"input"`

	// MinSeverity drops messages below this level before any sink sees
	// them; empty admits everything. Reloaded live when the config file
	// changes.
	MinSeverity string `json:"min_severity"`

	Tree     TreeConfig     `json:"tree"`
	Writer   WriterConfig   `json:"writer"`
	Postgres PostgresConfig `json:"postgres"`
	Monitor  MonitorConfig  `json:"monitor"`
	Logging  LoggingConfig  `json:"logging"`
}

// DefaultConfig returns the stdin → tree-renderer setup.
func DefaultConfig() *Config {
	return &Config{
		Input: InputConfig{
			Mode:       "stdin",
			ListenAddr: "127.0.0.1:34917",
		},
		Tree: TreeConfig{
			Enabled:   true,
			BatchSize: 10,
		},
		Postgres: PostgresConfig{
			ConnString:     "postgres://eagilog@localhost/eagilog",
			MigrationsPath: "file://migrations",
			BatchSize:      1000,
		},
		Monitor: MonitorConfig{
			ListenAddr: "127.0.0.1:34918",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from an optional file and applies
// environment overrides. An empty path yields defaults plus environment.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOGTREE_INPUT_MODE"); v != "" {
		cfg.Input.Mode = v
	}
	if v := os.Getenv("LOGTREE_LISTEN_ADDR"); v != "" {
		cfg.Input.ListenAddr = v
	}
	if v := os.Getenv("LOGTREE_MIN_SEVERITY"); v != "" {
		cfg.MinSeverity = v
	}
	if v := os.Getenv("LOGTREE_DB_CONN"); v != "" {
		cfg.Postgres.ConnString = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("LOGTREE_DB_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.BatchSize = n
		}
	}
	if v := os.Getenv("LOGTREE_MONITOR_ADDR"); v != "" {
		cfg.Monitor.ListenAddr = v
		cfg.Monitor.Enabled = true
	}
	if v := os.Getenv("LOGTREE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOGTREE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration and returns a descriptive error for
// the first problem found.
func (c *Config) Validate() error {
	switch c.Input.Mode {
	case "stdin":
	case "socket":
		if c.Input.ListenAddr == "" {
			return fmt.Errorf("input.listen_addr is required in socket mode")
		}
	default:
		return fmt.Errorf("input.mode must be \"stdin\" or \"socket\", got %q", c.Input.Mode)
	}

	if c.MinSeverity != "" {
		if _, err := ParseSeverityName(c.MinSeverity); err != nil {
			return err
		}
	}

	if !c.Tree.Enabled && !c.Writer.Enabled && !c.Postgres.Enabled {
		return fmt.Errorf("no sink enabled: enable at least one of tree, writer, postgres")
	}
	if c.Tree.Enabled && c.Writer.Enabled && c.Writer.Path == "" {
		return fmt.Errorf("tree and writer sinks both write to stdout: give writer.path a file")
	}
	if c.Postgres.Enabled {
		if c.Postgres.ConnString == "" {
			return fmt.Errorf("postgres.conn_string is required when the postgres sink is enabled")
		}
		if c.Postgres.BatchSize < 1 {
			return fmt.Errorf("postgres.batch_size must be at least 1, got %d", c.Postgres.BatchSize)
		}
	}
	if c.Tree.Enabled && c.Tree.BatchSize < 0 {
		return fmt.Errorf("tree.batch_size must not be negative, got %d", c.Tree.BatchSize)
	}
	if c.Monitor.Enabled && c.Monitor.ListenAddr == "" {
		return fmt.Errorf("monitor.listen_addr is required when the monitor is enabled")
	}
	return nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ParseSeverityName maps a configured severity name to the event severity,
// rejecting unknown names (unlike the wire parser, which defaults them).
func ParseSeverityName(name string) (event.Severity, error) {
	sev := event.ParseSeverity(name)
	if sev.String() != name {
		return 0, fmt.Errorf("unknown severity %q", name)
	}
	return sev, nil
}

// MinSeverityLevel returns the configured severity floor.
func (c *Config) MinSeverityLevel() event.Severity {
	if c.MinSeverity == "" {
		return event.SeverityBacktrace
	}
	sev, err := ParseSeverityName(c.MinSeverity)
	if err != nil {
		return event.SeverityBacktrace
	}
	return sev
}
