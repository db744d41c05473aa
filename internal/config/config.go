// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/siriusu/siriusu/internal/supervisor"
	"github.com/siriusu/siriusu/internal/telemetry"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "siriusu.yaml"

// RateLimit bounds requests per client IP.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Config is the daemon configuration. It is built once at startup and
// passed by pointer to the components that need it.
type Config struct {
	BDSDirectory string         `yaml:"bds_directory"`
	Executable   string         `yaml:"executable"`
	ServerHost   string         `yaml:"server_host"`
	ServerPort   int            `yaml:"server_port"`
	ServerToken  string         `yaml:"server_token"`
	SafePath     *bool          `yaml:"safe_path"`
	LogLevel     string         `yaml:"log_level"`
	LogFormat    string         `yaml:"log_format"`
	DataID       string         `yaml:"data_id"`
	Plugin       map[string]any `yaml:"plugin"`
	RateLimit    RateLimit      `yaml:"rate_limit"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Executable == "" {
		c.Executable = supervisor.DefaultExecutable
	}
	if c.ServerHost == "" {
		c.ServerHost = "127.0.0.1"
	}
	if c.ServerPort == 0 {
		c.ServerPort = 3000
	}
	if c.SafePath == nil {
		enabled := true
		c.SafePath = &enabled
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 50
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 100
	}
	if c.Plugin == nil {
		c.Plugin = map[string]any{}
	}
}

// Load reads the configuration at path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			wd, _ := os.Getwd()
			return nil, fmt.Errorf("cannot find %s at current directory: %s: %w", filepath.Base(path), wd, err)
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks field values that defaults cannot fix.
func (c *Config) Validate() error {
	var errs []error
	if _, err := telemetry.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q: expected text or json", c.LogFormat))
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("server_port %d out of range", c.ServerPort))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	return errors.Join(errs...)
}

// SandboxEnabled reports whether file operations are confined to the root.
func (c *Config) SandboxEnabled() bool {
	return c.SafePath == nil || *c.SafePath
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// URL returns the base URL clients use to reach the daemon.
func (c *Config) URL() string {
	return "http://" + c.Addr()
}

// PluginConfig derives the artifact handed to the behavior pack.
func (c *Config) PluginConfig() supervisor.PluginConfig {
	return supervisor.PluginConfig{
		ServerURL:   c.URL(),
		ServerToken: c.ServerToken,
		DataID:      c.DataID,
		Plugin:      c.Plugin,
	}
}

// SupervisorConfig derives the supervisor settings.
func (c *Config) SupervisorConfig() supervisor.Config {
	return supervisor.Config{
		Dir:        c.BDSDirectory,
		Executable: c.Executable,
		Artifact:   c.PluginConfig(),
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.ServerToken != "" {
		out.ServerToken = "***REDACTED***"
	}
	return &out
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
