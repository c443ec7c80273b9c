// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"aqua-monitor/internal/backend"
	"aqua-monitor/internal/telemetry"
)

// Environment overrides.
const (
	EnvBackendURL = "AQUA_BACKEND_URL"
	EnvAdminAddr  = "AQUA_ADMIN_ADDR"
	EnvLogLevel   = "AQUA_LOG_LEVEL"
)

// Defaults applied when a field is left out.
const (
	DefaultStreamPath  = "/analyze"
	DefaultStopPath    = "/stop_analysis"
	DefaultStopTimeout = 10 * time.Second
	DefaultAdminAddr   = ":8080"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// ErrInvalid marks a config that passed the schema but failed semantic checks.
var ErrInvalid = errors.New("invalid config")

// BackendConfig locates the detection service.
type BackendConfig struct {
	BaseURL     string        `yaml:"base_url"`
	StreamPath  string        `yaml:"stream_path"`
	StopPath    string        `yaml:"stop_path"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// Species is one monitored species and its minimum expected count.
type Species struct {
	Name      string `yaml:"name"`
	Threshold int    `yaml:"threshold"`
	Color     string `yaml:"color"`
}

// AdminConfig configures the local HTTP control surface.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root monitor configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Species []Species     `yaml:"species"`
	Admin   AdminConfig   `yaml:"admin"`
	Log     LogConfig     `yaml:"log"`
}

// Load reads a YAML config, validates it against the CUE schema (embedded
// when schemaPath is empty), applies defaults and environment overrides, and
// runs the semantic checks.
func Load(configPath, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read YAML config: %w", err)
	}
	return Parse(configPath, data, schemaPath)
}

// Parse is Load for config bytes already in memory.
func Parse(name string, data []byte, schemaPath string) (*Config, error) {
	if err := ValidateWithCue(name, data, schemaPath); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.StreamPath == "" {
		c.Backend.StreamPath = DefaultStreamPath
	}
	if c.Backend.StopPath == "" {
		c.Backend.StopPath = DefaultStopPath
	}
	if c.Backend.StopTimeout <= 0 {
		c.Backend.StopTimeout = DefaultStopTimeout
	}
	if c.Admin.Addr == "" {
		c.Admin.Addr = DefaultAdminAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvBackendURL); ok && v != "" {
		c.Backend.BaseURL = v
	}
	if v, ok := lookup(EnvAdminAddr); ok && v != "" {
		c.Admin.Addr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate runs the checks the schema cannot express.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: backend base_url %q is not an http(s) URL", ErrInvalid, c.Backend.BaseURL)
	}
	if len(c.Species) == 0 {
		return fmt.Errorf("%w: at least one species is required", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Species))
	for _, s := range c.Species {
		if s.Name == "" {
			return fmt.Errorf("%w: species name is empty", ErrInvalid)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate species %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
		if s.Threshold <= 0 {
			return fmt.Errorf("%w: species %q threshold must be positive", ErrInvalid, s.Name)
		}
	}
	return nil
}

// Targets converts the species list for the monitoring core.
func (c *Config) Targets() []telemetry.SpeciesTarget {
	out := make([]telemetry.SpeciesTarget, 0, len(c.Species))
	for _, s := range c.Species {
		out = append(out, telemetry.SpeciesTarget{Name: s.Name, Threshold: s.Threshold, Color: s.Color})
	}
	return out
}

// BackendClient returns the HTTP client configuration for the detection service.
func (c *Config) BackendClient() backend.Config {
	return backend.Config{
		BaseURL:     c.Backend.BaseURL,
		StreamPath:  c.Backend.StreamPath,
		StopPath:    c.Backend.StopPath,
		StopTimeout: c.Backend.StopTimeout,
	}
}
