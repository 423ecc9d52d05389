package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Handle is a running backend process.
type Handle struct {
	cmd  *exec.Cmd
	addr string

	done    chan struct{}
	waitErr error
}

func newHandle(cmd *exec.Cmd, addr string) *Handle {
	h := &Handle{
		cmd:  cmd,
		addr: addr,
		done: make(chan struct{}),
	}

	go func() {
		h.waitErr = cmd.Wait()
		close(h.done)
	}()

	return h
}

// Addr returns the address the server listens on.
func (h *Handle) Addr() string {
	return h.addr
}

// Done is closed once the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the exit error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.waitErr
	default:
		return nil
	}
}

// Pid returns the process id.
func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// Kill stops the process without a graceful signal and waits for it to exit.
// Killing a process that already exited is not an error.
func (h *Handle) Kill() error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill server: %w", err)
	}
	<-h.done
	return nil
}
