// Package supervisor builds the application, starts the backend and waits for
// it to answer on its listen address.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/stackctl/internal/build"
	"github.com/ternarybob/stackctl/internal/config"
	"github.com/ternarybob/stackctl/internal/ui"
	"github.com/ternarybob/stackctl/internal/workspace"
	"github.com/ternarybob/stackctl/pkg/stackmeta"
)

// DefaultPollInterval is the delay between readiness probes.
const DefaultPollInterval = time.Second

// probeTimeout bounds a single readiness request.
const probeTimeout = time.Second

// ErrExitedBeforeReady is returned when the backend exits before it ever
// answered a readiness probe.
var ErrExitedBeforeReady = errors.New("server exited before becoming ready")

// Supervisor runs one build-and-start cycle per ServeOnce call.
type Supervisor struct {
	cfg      *config.Config
	layout   workspace.Layout
	runner   build.Runner
	progress ui.Progress
	log      arbor.ILogger

	interval time.Duration
	client   *http.Client
	stdout   io.Writer
	stderr   io.Writer
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.interval = d
	}
}

// WithOutput redirects the backend's output streams. They default to the
// console.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Supervisor) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// New creates a Supervisor.
func New(cfg *config.Config, layout workspace.Layout, runner build.Runner, progress ui.Progress, log arbor.ILogger, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		layout:   layout,
		runner:   runner,
		progress: progress,
		log:      log,
		interval: DefaultPollInterval,
		client:   &http.Client{Timeout: probeTimeout},
		stdout:   os.Stdout,
		stderr:   os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeOnce builds a fresh session, starts the backend and blocks until it
// answers on its listen address. On error no process is left running.
func (s *Supervisor) ServeOnce(ctx context.Context) (*Handle, error) {
	defer s.progress.Hide()

	session := workspace.NewSessionID()
	pipeline := build.NewPipeline(s.cfg, s.layout, s.runner, session, s.log)
	pipeline.OnEscalate(s.progress.Hide)

	s.log.Debug().Str("session", string(session)).Msg("starting iteration")

	s.progress.Step(ui.StepBuildFrontend)
	frontendDir, err := pipeline.BuildFrontend(ctx)
	if err != nil {
		return nil, err
	}

	s.progress.Step(ui.StepBuildBackend)
	binary, err := pipeline.BuildBackend(ctx, frontendDir)
	if err != nil {
		return nil, err
	}

	s.progress.Step(ui.StepStarting)
	h, err := s.start(binary, frontendDir)
	if err != nil {
		return nil, err
	}

	if err := s.waitReady(ctx, h); err != nil {
		if kerr := h.Kill(); kerr != nil {
			s.log.Warn().Err(kerr).Msg("failed to stop server")
		}
		return nil, err
	}

	return h, nil
}

func (s *Supervisor) start(binary, frontendDir string) (*Handle, error) {
	meta := stackmeta.Metadata{
		ListenAddr:          s.cfg.Manifest.DevServer.Listen,
		FrontendDevBuildDir: frontendDir,
	}
	env, err := meta.Env()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(binary)
	cmd.Dir = s.layout.Root
	cmd.Stdin = nil
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.Env = append(os.Environ(), env)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	s.log.Debug().Str("binary", binary).Str("listen", meta.ListenAddr).Msg("server started")

	return newHandle(cmd, meta.ListenAddr), nil
}

// waitReady polls until the server answers, racing the poll against the
// process exiting.
func (s *Supervisor) waitReady(ctx context.Context, h *Handle) error {
	g, gctx := errgroup.WithContext(ctx)
	ready := make(chan struct{})

	g.Go(func() error {
		return s.poll(gctx, ready)
	})

	g.Go(func() error {
		select {
		case <-h.Done():
			if err := h.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrExitedBeforeReady, err)
			}
			return ErrExitedBeforeReady
		case <-ready:
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	return g.Wait()
}

func (s *Supervisor) poll(ctx context.Context, ready chan<- struct{}) error {
	url := s.cfg.ListenURL()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if s.probe(ctx, url) {
			close(ready)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// probe reports whether url answered with a 2xx status.
func (s *Supervisor) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListenURL returns the URL the served backend answers on.
func (s *Supervisor) ListenURL() string {
	return s.cfg.ListenURL()
}
