// Package workspace resolves the directory tree stackctl reads and writes.
//
// Path methods are pure functions of the layout, the mode and the session id.
// The Ensure variants create the directory before returning it; they are
// idempotent and never remove anything.
package workspace

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ternarybob/stackctl/internal/config"
	"github.com/ternarybob/stackctl/internal/fileutil"
)

// Part identifies one half of the application.
type Part string

const (
	Frontend Part = "frontend"
	Backend  Part = "backend"
)

const (
	buildDirName = "build"
	dataDirName  = ".stackable"
	devBuildsDir = "dev-builds"
	logsDirName  = "logs"
)

// SessionID scopes the artifacts of one dev-loop iteration.
type SessionID string

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID {
	return SessionID(NewID())
}

// NewID returns a short random identifier for log files and sessions.
func NewID() string {
	return uuid.NewString()[:8]
}

// Layout is the workspace directory tree rooted at the manifest directory.
type Layout struct {
	Root string
}

// New returns the layout for a workspace root.
func New(root string) Layout {
	return Layout{Root: root}
}

// FromConfig returns the layout for a loaded configuration.
func FromConfig(cfg *config.Config) Layout {
	return New(cfg.WorkspaceDir)
}

// BuildDir returns <root>/build.
func (l Layout) BuildDir() string {
	return filepath.Join(l.Root, buildDirName)
}

// DataDir returns <root>/.stackable.
func (l Layout) DataDir() string {
	return filepath.Join(l.Root, dataDirName)
}

// PartDataDir returns <root>/.stackable/<part>.
func (l Layout) PartDataDir(part Part) string {
	return filepath.Join(l.DataDir(), string(part))
}

// PartBuildDir returns the output directory of a part for the given mode.
func (l Layout) PartBuildDir(part Part, mode config.Mode, session SessionID) string {
	if mode.IsRelease() {
		return filepath.Join(l.BuildDir(), string(part))
	}
	return filepath.Join(l.PartDataDir(part), devBuildsDir, string(session))
}

// LogPath returns the capture file for one output stream of a build step.
func (l Layout) LogPath(part Part, stream, id string) string {
	return filepath.Join(l.PartDataDir(part), fmt.Sprintf("log-%s-%s", stream, id))
}

// PIDPath returns the serve lock file.
func (l Layout) PIDPath() string {
	return filepath.Join(l.DataDir(), "serve.pid")
}

// ServiceLogPath returns stackctl's own log file.
func (l Layout) ServiceLogPath() string {
	return filepath.Join(l.DataDir(), logsDirName, "stackctl.log")
}

// EnsurePartDataDir creates and returns PartDataDir.
func (l Layout) EnsurePartDataDir(part Part) (string, error) {
	dir := l.PartDataDir(part)
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create %s data directory: %w", part, err)
	}
	return dir, nil
}

// EnsurePartBuildDir creates and returns PartBuildDir.
func (l Layout) EnsurePartBuildDir(part Part, mode config.Mode, session SessionID) (string, error) {
	dir := l.PartBuildDir(part, mode, session)
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create build directory for %s build: %w", part, err)
	}
	return dir, nil
}

// EnsureDataDir creates and returns DataDir.
func (l Layout) EnsureDataDir() (string, error) {
	dir := l.DataDir()
	if err := fileutil.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
