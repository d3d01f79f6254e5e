// Package config loads the warden.yaml guardrail configuration.
//
// A missing file is not an error: the session falls back to the built-in
// conservative policy so the engine never runs unguarded. A file that is
// present but malformed fails with a ConfigError; callers degrade to the
// same conservative defaults after logging a warning.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/cmd/warden/cli/policy"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "warden.yaml"

const (
	// DefaultTimeout bounds a session when session.timeout is absent.
	DefaultTimeout = 30 * time.Minute
	// DefaultCheckpointInterval is the monitoring cycle period when
	// session.checkpoint_interval is absent.
	DefaultCheckpointInterval = 60 * time.Second
)

// ConfigError reports a config file that exists but cannot be used.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config is the decoded warden.yaml document.
type Config struct {
	Session     SessionConfig   `yaml:"session"`
	Guardrails  GuardrailConfig `yaml:"guardrails"`
	Limits      LimitConfig     `yaml:"limits"`
	OnViolation string          `yaml:"on_violation"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// SessionConfig holds session timing settings. Values accept either a
// Go duration string ("10m") or a bare number of seconds (600).
type SessionConfig struct {
	Timeout            time.Duration `yaml:"-"`
	CheckpointInterval time.Duration `yaml:"-"`
}

// UnmarshalYAML decodes the duration fields from either form.
func (sc *SessionConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Timeout            yaml.Node `yaml:"timeout"`
		CheckpointInterval yaml.Node `yaml:"checkpoint_interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	var err error
	if sc.Timeout, err = parseDuration(raw.Timeout); err != nil {
		return fmt.Errorf("session.timeout: %w", err)
	}
	if sc.CheckpointInterval, err = parseDuration(raw.CheckpointInterval); err != nil {
		return fmt.Errorf("session.checkpoint_interval: %w", err)
	}
	return nil
}

func parseDuration(n yaml.Node) (time.Duration, error) {
	if n.IsZero() || n.Value == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(n.Value); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(n.Value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("invalid duration %q", n.Value)
}

// GuardrailConfig holds path and command restrictions.
type GuardrailConfig struct {
	AllowedPaths      []string `yaml:"allowed_paths"`
	ForbiddenPaths    []string `yaml:"forbidden_paths"`
	ForbiddenCommands []string `yaml:"forbidden_commands"`
}

// LimitConfig holds the numeric change limits.
type LimitConfig struct {
	MaxFilesChanged *int   `yaml:"max_files_changed"`
	MaxLinesChanged *int   `yaml:"max_lines_changed"`
	MaxCostUSD      string `yaml:"max_cost_usd"`
}

// TelemetryConfig controls the outbound event stream. Disabled by default.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// Load reads and validates the config file at path. A missing file
// returns the defaults with no error. Any other failure returns a
// ConfigError wrapping the cause.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path chosen by the operator.
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, &ConfigError{Path: path, Err: err}
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if cfg.Session.Timeout <= 0 {
		cfg.Session.Timeout = DefaultTimeout
	}
	if cfg.Session.CheckpointInterval <= 0 {
		cfg.Session.CheckpointInterval = DefaultCheckpointInterval
	}

	if _, err := cfg.Policy(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// Policy builds the immutable session policy from the decoded document.
// Fields left unset inherit the conservative built-in values.
func (c *Config) Policy() (*policy.Policy, error) {
	base := policy.Default()

	p := &policy.Policy{
		AllowedPaths:      c.Guardrails.AllowedPaths,
		ForbiddenPaths:    c.Guardrails.ForbiddenPaths,
		ForbiddenCommands: c.Guardrails.ForbiddenCommands,
		MaxFilesChanged:   base.MaxFilesChanged,
		MaxLinesChanged:   base.MaxLinesChanged,
		MaxCostUSD:        base.MaxCostUSD,
		OnViolation:       policy.ParseAction(c.OnViolation),
	}
	if len(p.ForbiddenPaths) == 0 {
		p.ForbiddenPaths = base.ForbiddenPaths
	}
	if c.Limits.MaxFilesChanged != nil {
		p.MaxFilesChanged = *c.Limits.MaxFilesChanged
	}
	if c.Limits.MaxLinesChanged != nil {
		p.MaxLinesChanged = *c.Limits.MaxLinesChanged
	}
	if c.Limits.MaxCostUSD != "" {
		cost, err := decimal.NewFromString(c.Limits.MaxCostUSD)
		if err != nil {
			return nil, fmt.Errorf("invalid max_cost_usd %q: %w", c.Limits.MaxCostUSD, err)
		}
		p.MaxCostUSD = cost
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Timeout:            DefaultTimeout,
			CheckpointInterval: DefaultCheckpointInterval,
		},
	}
}
