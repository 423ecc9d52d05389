package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultManifestName is the manifest file looked up when no path is given.
const DefaultManifestName = "stackable.toml"

// Manifest is the decoded stackable.toml.
type Manifest struct {
	DevServer DevServerConfig `toml:"dev-server"`
	Tools     ToolsConfig     `toml:"tools"`
	Logging   *LoggingConfig  `toml:"logging"`
}

// DevServerConfig describes the backend binary served during development.
type DevServerConfig struct {
	BinName string `toml:"bin_name"`
	Listen  string `toml:"listen"`
}

// ToolsConfig names the external build tools.
type ToolsConfig struct {
	Frontend string `toml:"frontend"`
	Backend  string `toml:"backend"`
}

// DefaultManifest returns a manifest with tool defaults and no dev server.
func DefaultManifest() Manifest {
	return Manifest{
		Tools: ToolsConfig{
			Frontend: "trunk",
			Backend:  "cargo",
		},
	}
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return ParseManifest(data)
}

// ParseManifest decodes manifest content, applying defaults for optional keys.
func ParseManifest(data []byte) (*Manifest, error) {
	manifest := DefaultManifest()

	if _, err := toml.Decode(string(data), &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	defaults := DefaultManifest()
	if manifest.Tools.Frontend == "" {
		manifest.Tools.Frontend = defaults.Tools.Frontend
	}
	if manifest.Tools.Backend == "" {
		manifest.Tools.Backend = defaults.Tools.Backend
	}

	if err := manifest.validate(); err != nil {
		return nil, err
	}

	return &manifest, nil
}

func (m *Manifest) validate() error {
	var errs []error
	if m.DevServer.BinName == "" {
		errs = append(errs, errors.New("dev-server.bin_name is required"))
	}
	if m.DevServer.Listen == "" {
		errs = append(errs, errors.New("dev-server.listen is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid manifest: %w", errors.Join(errs...))
	}
	return nil
}
