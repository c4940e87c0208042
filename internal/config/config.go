// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/zeebo/blake3"

	"github.com/xonecas/javalsp/internal/constants"
)

// Config is the root configuration structure.
type Config struct {
	JDTLS    JDTLSConfig    `toml:"jdtls"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Scan     ScanConfig     `toml:"scan"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// JDTLSConfig holds language server launch settings.
type JDTLSConfig struct {
	// Command is the server command line, split on whitespace at launch.
	// The positional CLI argument takes precedence when given.
	Command string `toml:"command"`
	// DataRoot is the parent of every working-data directory.
	// Defaults to the OS temp dir.
	DataRoot string `toml:"data_root"`
	// LaunchGrace is how long a freshly spawned process must stay alive.
	LaunchGrace Duration `toml:"launch_grace"`
}

// TimeoutsConfig bounds every blocking LSP interaction.
type TimeoutsConfig struct {
	Request       Duration `toml:"request"`
	Initialize    Duration `toml:"initialize"`
	PostInitGrace Duration `toml:"post_init_grace"`
	// Ready bounds the wait for the server's readiness notification after
	// the handshake. Zero skips the wait.
	Ready    Duration `toml:"ready"`
	Shutdown Duration `toml:"shutdown"`
}

// ScanConfig controls workspace-wide symbol scans.
type ScanConfig struct {
	Concurrency  int  `toml:"concurrency"`
	FallbackGlob bool `toml:"fallback_glob"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig holds the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration that decodes from strings like "120s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		JDTLS: JDTLSConfig{
			LaunchGrace: Duration{500 * time.Millisecond},
		},
		Timeouts: TimeoutsConfig{
			Request:       Duration{120 * time.Second},
			Initialize:    Duration{180 * time.Second},
			PostInitGrace: Duration{5 * time.Second},
			Shutdown:      Duration{5 * time.Second},
		},
		Scan: ScanConfig{
			Concurrency:  4,
			FallbackGlob: true,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from a TOML file and applies environment variable overrides.
// An empty path yields the defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"timeouts.request", c.Timeouts.Request.Duration},
		{"timeouts.initialize", c.Timeouts.Initialize.Duration},
		{"timeouts.shutdown", c.Timeouts.Shutdown.Duration},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s=%s must be positive", d.name, d.value))
		}
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"timeouts.post_init_grace", c.Timeouts.PostInitGrace.Duration},
		{"timeouts.ready", c.Timeouts.Ready.Duration},
		{"jdtls.launch_grace", c.JDTLS.LaunchGrace.Duration},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s=%s must not be negative", d.name, d.value))
		}
	}

	if c.Scan.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("scan.concurrency=%d must be at least 1", c.Scan.Concurrency))
	}

	if !logLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level=%q is not one of trace, debug, info, warn, error", c.Log.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"JAVALSP_JDTLS_COMMAND", func(v string) {
			if v != "" {
				cfg.JDTLS.Command = v
			}
		}},
		{"JAVALSP_DATA_ROOT", func(v string) {
			if v != "" {
				cfg.JDTLS.DataRoot = v
			}
		}},
		{"JAVALSP_LOG_LEVEL", func(v string) {
			if v != "" {
				cfg.Log.Level = v
			}
		}},
		{"JAVALSP_METRICS_ADDR", func(v string) {
			if v != "" {
				cfg.Metrics.Addr = v
			}
		}},
		{"JAVALSP_REQUEST_TIMEOUT", func(v string) {
			if v == "" {
				return
			}
			if err := cfg.Timeouts.Request.UnmarshalText([]byte(v)); err != nil {
				errs = append(errs, fmt.Errorf("JAVALSP_REQUEST_TIMEOUT=%q: %w", v, err))
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
	return errors.Join(errs...)
}

// DataDir returns the working-data directory for a workspace:
// <root>/java-lsp-data/<hash of the absolute workspace path>. An empty root
// means the OS temp dir. The same workspace always maps to the same
// directory; distinct workspaces never share one.
func DataDir(root, workspace string) (string, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace %s: %w", workspace, err)
	}
	if root == "" {
		root = os.TempDir()
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve data root %s: %w", root, err)
	}
	if rel, err := filepath.Rel(abs, rootAbs); err == nil && !strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("data root %s must be outside workspace %s", rootAbs, abs)
	}

	sum := blake3.Sum256([]byte(abs))
	name := hex.EncodeToString(sum[:16])
	return filepath.Join(rootAbs, constants.ServerName+constants.DataDirSuffix, name), nil
}

// EnsureDataDir creates the working-data directory if it doesn't exist.
func EnsureDataDir(root, workspace string) (string, error) {
	dir, err := DataDir(root, workspace)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	return dir, nil
}
