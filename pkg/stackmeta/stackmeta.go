// Package stackmeta is the runtime metadata stackctl hands to a backend it
// serves. Backends read it with FromEnv.
package stackmeta

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// EnvName is the environment variable carrying the metadata blob.
const EnvName = "STACKCTL_METADATA"

// ErrNotServed is returned by FromEnv when the process was not started by
// stackctl serve.
var ErrNotServed = errors.New("stackctl metadata not set")

// Metadata describes the environment a dev build runs in.
type Metadata struct {
	// ListenAddr is the host:port the backend must listen on.
	ListenAddr string `json:"listen_addr"`
	// FrontendDevBuildDir holds the frontend assets of the current session.
	FrontendDevBuildDir string `json:"frontend_dev_build_dir"`
}

// JSON encodes m for the environment.
func (m Metadata) JSON() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

// Env returns the NAME=value entry for a child environment.
func (m Metadata) Env() (string, error) {
	blob, err := m.JSON()
	if err != nil {
		return "", err
	}
	return EnvName + "=" + blob, nil
}

// Parse decodes a metadata blob.
func Parse(blob string) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal([]byte(blob), &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

// FromEnv reads the metadata of the current process.
func FromEnv() (Metadata, error) {
	blob, ok := os.LookupEnv(EnvName)
	if !ok || blob == "" {
		return Metadata{}, ErrNotServed
	}
	return Parse(blob)
}
