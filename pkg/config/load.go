package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from path. If path is empty, DefaultConfigPath is
// used and a missing file is not an error. Environment variables override the
// file, e.g. PROTOFLOW_SOCKET or PROTOFLOW_SERVE_ADDR.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultConfigPath()
		if err == nil {
			path = defaultPath
		}
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("profile", cfg.Profile)
	v.SetDefault("socket", cfg.Socket)
	v.SetDefault("framing", cfg.Framing)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("run_db", cfg.RunDB)
	v.SetDefault("call.timeout", cfg.Call.Timeout)
	v.SetDefault("call.accept_timeout", cfg.Call.AcceptTimeout)
	v.SetDefault("call.command", cfg.Call.Command)
	v.SetDefault("call.retry_attempts", cfg.Call.RetryAttempts)
	v.SetDefault("serve.addr", cfg.Serve.Addr)
	v.SetDefault("serve.rate_limit", cfg.Serve.RateLimit)
	v.SetDefault("serve.burst", cfg.Serve.Burst)
	v.SetDefault("schedules", cfg.Schedules)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
			if explicit || !missing {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.RunDB = os.ExpandEnv(cfg.RunDB)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Render returns cfg as YAML.
func Render(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default config to path, or DefaultConfigPath when empty.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := Render(DefaultConfig())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
