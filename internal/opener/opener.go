// Package opener launches the user's browser.
package opener

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Opener opens a URL outside stackctl.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// Command opens URLs with the platform's opener command.
type Command struct {
	name string
	args []string
}

// New returns the opener for the current platform.
func New() *Command {
	return ForOS(runtime.GOOS)
}

// ForOS returns the opener used on goos.
func ForOS(goos string) *Command {
	switch goos {
	case "darwin":
		return &Command{name: "open"}
	case "windows":
		return &Command{name: "rundll32", args: []string{"url.dll,FileProtocolHandler"}}
	default:
		return &Command{name: "xdg-open"}
	}
}

// Open starts the opener and waits for it to hand the URL over.
func (c *Command) Open(ctx context.Context, url string) error {
	args := append(append([]string{}, c.args...), url)
	if err := exec.CommandContext(ctx, c.name, args...).Run(); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

// Name returns the opener executable.
func (c *Command) Name() string {
	return c.name
}
