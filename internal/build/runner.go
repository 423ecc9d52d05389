package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stackctl/internal/relay"
)

// Command describes an external tool invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env entries are appended to the current environment.
	Env []string
}

// String returns the command line for messages.
func (c Command) String() string {
	s := c.Name
	for _, a := range c.Args {
		s += " " + a
	}
	return s
}

// OutputMode selects where a child's stdout and stderr go.
type OutputMode int

const (
	// OutputCapture relays both streams into log files.
	OutputCapture OutputMode = iota
	// OutputInherit attaches both streams to the console.
	OutputInherit
)

// Invocation is a Command plus where its output goes.
type Invocation struct {
	Command
	Output    OutputMode
	StdoutLog string
	StderrLog string
}

// Runner is the process boundary of the build pipeline.
type Runner interface {
	// Run starts the invocation with stdin closed and waits for it to exit.
	// A non-zero exit status is returned as an error.
	Run(ctx context.Context, inv Invocation) error

	// Output runs cmd with stdin closed and returns its stdout.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// LocalRunner executes commands with os/exec.
type LocalRunner struct {
	log arbor.ILogger
}

// NewLocalRunner creates a LocalRunner.
func NewLocalRunner(log arbor.ILogger) *LocalRunner {
	return &LocalRunner{log: log}
}

// Run executes the invocation.
func (r *LocalRunner) Run(ctx context.Context, inv Invocation) error {
	cmd := r.command(ctx, inv.Command)

	if inv.Output == OutputInherit {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s: %w", inv.Name, err)
		}
		return nil
	}

	// Plain pipes instead of StdoutPipe: Wait must not close the read ends
	// while the detached relays are still copying.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	startErr := cmd.Start()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if startErr != nil {
		_ = stdoutR.Close()
		_ = stderrR.Close()
		return fmt.Errorf("%s: %w", inv.Name, startErr)
	}

	if err := relay.Relay(stdoutR, inv.StdoutLog, r.log); err != nil {
		_ = stdoutR.Close()
		r.log.Warn().Err(err).Msg("stdout will not be captured")
	}
	if err := relay.Relay(stderrR, inv.StderrLog, r.log); err != nil {
		_ = stderrR.Close()
		r.log.Warn().Err(err).Msg("stderr will not be captured")
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", inv.Name, err)
	}
	return nil
}

// Output executes cmd and returns its stdout.
func (r *LocalRunner) Output(ctx context.Context, c Command) ([]byte, error) {
	cmd := r.command(ctx, c)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return nil, fmt.Errorf("%s failed with status %d: %s", c.Name, exitErr.ExitCode(), bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	return out, nil
}

func (r *LocalRunner) command(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	// nil Stdin reads from the null device
	cmd.Stdin = nil
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd
}
