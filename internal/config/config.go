// Package config loads agentviz configuration: defaults, then an optional
// YAML file, then environment overrides. Flags applied by the commands win
// over everything here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration shared by the viewer and the server.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
}

// ServerConfig controls the backend daemon.
type ServerConfig struct {
	Listen  string `yaml:"listen"`
	RunsDir string `yaml:"runs_dir"`
}

// ClientConfig controls the viewer.
type ClientConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Refresh  time.Duration `yaml:"refresh"`
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:  "127.0.0.1:8321",
			RunsDir: "./agent_runs",
		},
		Client: ClientConfig{
			BaseURL:  "http://127.0.0.1:8321",
			Refresh:  5 * time.Second,
			Debounce: 750 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file over the defaults and then applies
// environment overrides. An empty path skips the file; a missing file at
// an explicit path is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv layers environment variables over the loaded values.
func (c *Config) applyEnv() {
	if v := os.Getenv("AGENTVIZ_SERVER"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("AGENTVIZ_RUNS_DIR"); v != "" {
		c.Server.RunsDir = v
	}
	if v := os.Getenv("AGENTVIZ_LISTEN"); v != "" {
		c.Server.Listen = v
	}
}
