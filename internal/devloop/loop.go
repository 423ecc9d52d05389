// Package devloop drives the serve cycle: build and start the backend, wait
// for a change, stop it, repeat.
package devloop

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stackctl/internal/opener"
	"github.com/ternarybob/stackctl/internal/supervisor"
	"github.com/ternarybob/stackctl/internal/ui"
)

// Handle is a live server owned by the loop.
type Handle interface {
	Kill() error
}

// Server produces one live server per call.
type Server interface {
	ServeOnce(ctx context.Context) (Handle, error)
	ListenURL() string
}

// supervisorServer adapts a Supervisor to Server.
type supervisorServer struct {
	*supervisor.Supervisor
}

// FromSupervisor returns s as a Server.
func FromSupervisor(s *supervisor.Supervisor) Server {
	return supervisorServer{s}
}

func (s supervisorServer) ServeOnce(ctx context.Context) (Handle, error) {
	h, err := s.Supervisor.ServeOnce(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Loop is the serve state machine. At most one server is alive at any time.
type Loop struct {
	server   Server
	triggers <-chan time.Time
	reporter ui.Reporter
	opener   opener.Opener
	open     bool
	log      arbor.ILogger

	live   Handle
	opened bool
}

// New creates a Loop. When open is set the browser is opened after the first
// iteration whose build succeeds.
func New(server Server, triggers <-chan time.Time, reporter ui.Reporter, op opener.Opener, open bool, log arbor.ILogger) *Loop {
	return &Loop{
		server:   server,
		triggers: triggers,
		reporter: reporter,
		opener:   op,
		open:     open,
		log:      log,
	}
}

// Run iterates until the trigger stream ends or ctx is cancelled, both of
// which return nil after stopping the live server. A server that cannot be
// stopped ends the loop with an error.
func (l *Loop) Run(ctx context.Context) error {
	for {
		started := l.iterate(ctx)
		if ctx.Err() != nil {
			return l.stop()
		}

		if !l.waitForChange(ctx, started) {
			return l.stop()
		}

		if err := l.stop(); err != nil {
			return err
		}
	}
}

// iterate builds and starts one server and returns when the iteration began.
func (l *Loop) iterate(ctx context.Context) time.Time {
	started := time.Now()

	h, err := l.server.ServeOnce(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		return started
	case err != nil:
		l.log.Error().Err(err).Msg("build failed")
		l.reporter.BuildFailed(err)
	default:
		l.live = h
		l.reporter.Built(time.Since(started), l.server.ListenURL())
		l.openOnce(ctx)
	}

	return started
}

// openOnce opens the browser after the first successful build. Failing to
// open it is not fatal to the loop.
func (l *Loop) openOnce(ctx context.Context) {
	if !l.open || l.opened {
		return
	}
	l.opened = true
	if err := l.opener.Open(ctx, l.server.ListenURL()); err != nil {
		l.log.Warn().Err(err).Msg("failed to open browser")
	}
}

// waitForChange blocks until a trigger newer than since arrives. It returns
// false when the loop should exit.
func (l *Loop) waitForChange(ctx context.Context, since time.Time) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case ts, ok := <-l.triggers:
			if !ok {
				l.log.Debug().Msg("change stream ended")
				return false
			}
			if !ts.After(since) {
				// Already part of the build that just ran.
				continue
			}
			return true
		}
	}
}

func (l *Loop) stop() error {
	if l.live == nil {
		return nil
	}
	h := l.live
	l.live = nil
	if err := h.Kill(); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}
