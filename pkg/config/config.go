// Package config loads protoflow settings from an optional YAML file and
// PROTOFLOW_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jdziat/protoflow/pkg/protocol"
	"github.com/jdziat/protoflow/pkg/schedule"
	"github.com/jdziat/protoflow/pkg/security"
	"github.com/jdziat/protoflow/pkg/transport"
)

// EnvPrefix prefixes every environment override, e.g. PROTOFLOW_SOCKET.
const EnvPrefix = "PROTOFLOW"

// Config is the top-level configuration.
type Config struct {
	Profile   string           `mapstructure:"profile" yaml:"profile"`
	Socket    string           `mapstructure:"socket" yaml:"socket"`
	Framing   string           `mapstructure:"framing" yaml:"framing"`
	LogLevel  string           `mapstructure:"log_level" yaml:"log_level"`
	RunDB     string           `mapstructure:"run_db" yaml:"run_db"`
	Call      CallConfig       `mapstructure:"call" yaml:"call"`
	Serve     ServeConfig      `mapstructure:"serve" yaml:"serve"`
	Schedules []ScheduleConfig `mapstructure:"schedules" yaml:"schedules"`
}

// CallConfig configures the orchestrator.
type CallConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	AcceptTimeout time.Duration `mapstructure:"accept_timeout" yaml:"accept_timeout"`
	Command       []string      `mapstructure:"command" yaml:"command"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
}

// MarshalYAML renders durations in their string form.
func (c CallConfig) MarshalYAML() (any, error) {
	return struct {
		Timeout       string   `yaml:"timeout"`
		AcceptTimeout string   `yaml:"accept_timeout"`
		Command       []string `yaml:"command"`
		RetryAttempts int      `yaml:"retry_attempts"`
	}{
		Timeout:       c.Timeout.String(),
		AcceptTimeout: c.AcceptTimeout.String(),
		Command:       c.Command,
		RetryAttempts: c.RetryAttempts,
	}, nil
}

// ServeConfig configures the HTTP front.
type ServeConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// ScheduleConfig is one recurring call.
type ScheduleConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Schedule     string `mapstructure:"schedule" yaml:"schedule"`
	ImportPath   string `mapstructure:"import_path" yaml:"import_path"`
	FunctionName string `mapstructure:"function_name" yaml:"function_name"`
	Input        any    `mapstructure:"input" yaml:"input,omitempty"`
}

// InputJSON returns the schedule input encoded as JSON.
func (s ScheduleConfig) InputJSON() (json.RawMessage, error) {
	if s.Input == nil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(s.Input)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: encode input: %w", s.Name, err)
	}
	return b, nil
}

// DefaultConfig returns a config with defaults.
func DefaultConfig() Config {
	return Config{
		Profile:  string(transport.ProfileSocket),
		Socket:   "",
		Framing:  string(protocol.FramingJSON),
		LogLevel: "info",
		RunDB:    defaultRunDB(),
		Call: CallConfig{
			Timeout:       0,
			AcceptTimeout: 10 * time.Minute,
			Command:       []string{},
			RetryAttempts: 1,
		},
		Serve: ServeConfig{
			Addr:      ":8080",
			RateLimit: 10,
			Burst:     20,
		},
		Schedules: []ScheduleConfig{},
	}
}

func defaultRunDB() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".protoflow", "runs.db")
	}
	return filepath.Join(home, ".protoflow", "runs.db")
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".protoflow", "config.yaml"), nil
}

// Validate checks enumerations, the log level and every schedule.
func (c Config) Validate() error {
	if _, err := transport.ParseProfile(c.Profile); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if _, err := protocol.ParseFraming(c.Framing); err != nil {
		return fmt.Errorf("framing: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Call.RetryAttempts < 1 || c.Call.RetryAttempts > security.MaxRetries {
		return fmt.Errorf("call.retry_attempts must be between 1 and %d", security.MaxRetries)
	}
	if c.Serve.Burst < 0 {
		return fmt.Errorf("serve.burst must not be negative")
	}

	seen := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedules[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if _, err := schedule.ParseSchedule(s.Schedule); err != nil {
			return fmt.Errorf("schedules[%d] %q: %w", i, s.Name, err)
		}
		if err := security.ValidateImportPath(s.ImportPath); err != nil {
			return fmt.Errorf("schedules[%d] %q: %w", i, s.Name, err)
		}
		if s.FunctionName != "" {
			if err := security.ValidateFunctionName(s.FunctionName); err != nil {
				return fmt.Errorf("schedules[%d] %q: %w", i, s.Name, err)
			}
		}
		if _, err := s.InputJSON(); err != nil {
			return err
		}
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
