package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Config holds the client and CLI settings. Durations are stored as strings
// such as "10s".
type Config struct {
	RequestTimeout   time.Duration `json:"request_timeout"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout"`
	DialTimeout      time.Duration `json:"dial_timeout"`
	DiscoveryTimeout time.Duration `json:"discovery_timeout"`
	DefaultAppID     string        `json:"default_app_id"`
	LogLevel         string        `json:"log_level"`
	// MetricsAddr serves Prometheus metrics from long-running commands when
	// set, e.g. "127.0.0.1:9090".
	MetricsAddr string `json:"metrics_addr"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		RequestTimeout:   30 * time.Second,
		HeartbeatTimeout: 10 * time.Second,
		DialTimeout:      10 * time.Second,
		DiscoveryTimeout: 3 * time.Second,
		DefaultAppID:     "CC1AD845",
		LogLevel:         "info",
	}
}

// GetAppConfig loads the settings file from the user config directory,
// creating it with defaults when missing.
func GetAppConfig() (*Config, error) {
	path, err := appPath()
	if err != nil {
		return nil, fmt.Errorf("GetAppConfig: failed to access config path due to error %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads the settings file at path. Keys missing from the file keep
// their default values. A missing file is created with defaults.
func LoadFrom(path string) (*Config, error) {
	conf := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := conf.SaveTo(path); err != nil {
				return nil, fmt.Errorf("LoadFrom: failed to create default config due to error %w", err)
			}
			return conf, nil
		}
		return nil, fmt.Errorf("LoadFrom: failed to open config due to error %w", err)
	}

	raw := make(map[string]any)
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("LoadFrom: failed to decode config due to error %w", err)
	}

	if err := decode(raw, conf); err != nil {
		return nil, fmt.Errorf("LoadFrom: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("LoadFrom: %w", err)
	}
	return conf, nil
}

func decode(raw map[string]any, conf *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		TagName:     "json",
		ErrorUnused: true,
		Result:      conf,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Validate rejects settings the client cannot run with.
func (s *Config) Validate() error {
	for name, d := range map[string]time.Duration{
		"request_timeout":   s.RequestTimeout,
		"heartbeat_timeout": s.HeartbeatTimeout,
		"dial_timeout":      s.DialTimeout,
		"discovery_timeout": s.DiscoveryTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("Validate: %s must be positive, got %s", name, d)
		}
	}
	if s.DefaultAppID == "" {
		return fmt.Errorf("Validate: default_app_id is empty")
	}
	return nil
}

// SaveAppConfig writes the settings to the user config directory.
func (s *Config) SaveAppConfig() error {
	path, err := appPath()
	if err != nil {
		return fmt.Errorf("SaveAppConfig: failed to access config path due to error %w", err)
	}
	return s.SaveTo(path)
}

// SaveTo writes the settings to path.
func (s *Config) SaveTo(path string) error {
	b, err := json.MarshalIndent(map[string]any{
		"request_timeout":   s.RequestTimeout.String(),
		"heartbeat_timeout": s.HeartbeatTimeout.String(),
		"dial_timeout":      s.DialTimeout.String(),
		"discovery_timeout": s.DiscoveryTimeout.String(),
		"default_app_id":    s.DefaultAppID,
		"log_level":         s.LogLevel,
		"metrics_addr":      s.MetricsAddr,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveTo: failed to marshal json due to error %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("SaveTo: failed to create config path due to error %w", err)
	}

	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("SaveTo: failed save config due to error %w", err)
	}

	return nil
}

func appPath() (string, error) {
	oscfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("appPath: failed to get config file due to error %w", err)
	}

	return filepath.Join(oscfg, "castlink", "settings.json"), nil
}
