// Package config provides configuration management for stackctl.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Mode selects how a run builds and where its artifacts go.
type Mode int

const (
	// ModeServe runs the iterative development loop with per-session dev builds.
	ModeServe Mode = iota
	// ModeRelease produces a single optimised build under <workspace>/build.
	ModeRelease
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeServe:
		return "serve"
	case ModeRelease:
		return "release"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// IsRelease reports whether builds should be optimised and streamed to the console.
func (m Mode) IsRelease() bool {
	return m == ModeRelease
}

// LogLevelEnv overrides the log level.
const LogLevelEnv = "STACKCTL_LOG"

// Config represents a single stackctl run.
type Config struct {
	ManifestPath string
	WorkspaceDir string
	Mode         Mode
	Manifest     Manifest
	Logging      LoggingConfig
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	level := os.Getenv(LogLevelEnv)
	if level == "" {
		level = "info"
	}

	return &Config{
		ManifestPath: DefaultManifestName,
		Mode:         ModeServe,
		Manifest:     DefaultManifest(),
		Logging: LoggingConfig{
			Level:      level,
			Format:     "text",
			Output:     []string{"console", "file"},
			TimeFormat: "15:04:05.000",
		},
	}
}

// Load resolves the workspace from the manifest path and decodes the manifest.
func Load(manifestPath string, mode Mode) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Mode = mode

	if manifestPath == "" {
		manifestPath = DefaultManifestName
	}

	// Expand tilde
	if strings.HasPrefix(manifestPath, "~/") {
		home, _ := os.UserHomeDir()
		manifestPath = filepath.Join(home, manifestPath[2:])
	}

	absPath, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find workspace directory: %w", err)
	}

	manifest, err := LoadManifest(resolved)
	if err != nil {
		return nil, err
	}

	cfg.ManifestPath = resolved
	cfg.WorkspaceDir = filepath.Dir(resolved)
	cfg.Manifest = *manifest

	if manifest.Logging != nil {
		mergeLogging(&cfg.Logging, manifest.Logging)
	}

	return cfg, nil
}

// ListenURL returns the URL the backend is expected to answer on.
func (c *Config) ListenURL() string {
	return fmt.Sprintf("http://%s/", c.Manifest.DevServer.Listen)
}

// mergeLogging applies manifest logging settings; the environment wins for the level.
func mergeLogging(dst *LoggingConfig, src *LoggingConfig) {
	if src.Level != "" && os.Getenv(LogLevelEnv) == "" {
		dst.Level = src.Level
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if len(src.Output) > 0 {
		dst.Output = src.Output
	}
	if src.TimeFormat != "" {
		dst.TimeFormat = src.TimeFormat
	}
}
