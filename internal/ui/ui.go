// Package ui renders stackctl's console output.
package ui

import (
	"io"
	"os"
	"time"
)

// Step is a stage of one serve iteration shown by Progress.
type Step int

// Available Step values.
const (
	StepBuildFrontend Step = iota
	StepBuildBackend
	StepStarting
)

// String returns the label shown next to the spinner.
func (s Step) String() string {
	switch s {
	case StepBuildFrontend:
		return "Building frontend..."
	case StepBuildBackend:
		return "Building backend..."
	case StepStarting:
		return "Starting server..."
	default:
		return "Working..."
	}
}

// Progress shows which step of an iteration is running.
type Progress interface {
	Step(step Step)
	// Hide removes the indicator. It is safe to call when nothing is shown.
	Hide()
}

// Reporter prints the user-facing results of the dev loop and release builds.
type Reporter interface {
	Built(elapsed time.Duration, listenURL string)
	BuildFailed(err error)
	ReleaseStarted()
	ReleaseFinished(frontendDir, binary string, elapsed time.Duration)
	Error(err error)
}

// NewProgress creates a spinner on terminals and plain step lines otherwise.
func NewProgress(w io.Writer, useTTY bool) Progress {
	if useTTY {
		return NewSpinnerProgress(w)
	}
	return NewSimpleProgress(w)
}

// IsTTY checks if the given writer is a terminal.
func IsTTY(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return false
	}

	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
