// Package service guards a workspace against concurrent serve sessions.
package service

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stackctl/internal/fileutil"
	"github.com/ternarybob/stackctl/internal/workspace"
)

// ErrAlreadyServing is returned when another stackctl serve owns the workspace.
var ErrAlreadyServing = errors.New("stackctl serve is already running in this workspace")

// ErrNotServing is returned by StopRunning when no serve session is found.
var ErrNotServing = errors.New("stackctl serve is not running in this workspace")

// Lock is the PID file held by a serve session.
type Lock struct {
	path string
	log  arbor.ILogger

	mu   sync.Mutex
	held bool
}

// Acquire writes the current PID into the workspace lock file. A lock left
// behind by a dead process is replaced.
func Acquire(layout workspace.Layout, log arbor.ILogger) (*Lock, error) {
	if running, pid := IsRunning(layout); running {
		return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyServing, pid)
	}

	if _, err := layout.EnsureDataDir(); err != nil {
		return nil, err
	}

	path := layout.PIDPath()
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return nil, fmt.Errorf("write PID: %w", err)
	}

	log.Debug().Str("pid_file", path).Msg("serve lock acquired")

	return &Lock{path: path, log: log, held: true}, nil
}

// Release removes the lock file if it still names this process.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return
	}
	l.held = false

	if pid, ok := readPID(l.path); ok && pid != os.Getpid() {
		l.log.Warn().Str("pid_file", l.path).Msg("serve lock taken over by another process")
		return
	}
	_ = os.Remove(l.path)
}

// IsRunning checks if a serve session is alive in the workspace. A stale PID
// file is removed.
func IsRunning(layout workspace.Layout) (bool, int) {
	pidPath := layout.PIDPath()
	if !fileutil.Exists(pidPath) {
		return false, 0
	}

	pid, ok := readPID(pidPath)
	if !ok {
		_ = os.Remove(pidPath)
		return false, 0
	}

	if !alive(pid) {
		_ = os.Remove(pidPath)
		return false, 0
	}

	return true, pid
}

// StopRunning terminates the serve session of the workspace, escalating to a
// kill when it does not exit within three seconds.
func StopRunning(layout workspace.Layout) error {
	running, pid := IsRunning(layout)
	if !running {
		return ErrNotServing
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if running, _ := IsRunning(layout); !running {
			return nil
		}
	}

	if err := process.Kill(); err != nil {
		return fmt.Errorf("kill process: %w", err)
	}

	_ = os.Remove(layout.PIDPath())

	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// alive probes pid with signal 0.
func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
