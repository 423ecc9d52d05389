// Package build runs the frontend and backend toolchains and collects the
// resulting artifacts.
package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stackctl/internal/config"
	"github.com/ternarybob/stackctl/internal/fileutil"
	"github.com/ternarybob/stackctl/internal/workspace"
)

// FrontendBuildDirEnv hands the frontend output directory to the backend build.
const FrontendBuildDirEnv = "STACKABLE_FRONTEND_BUILD_DIR"

// ErrBuildFailed is returned when a build tool exits unsuccessfully.
var ErrBuildFailed = errors.New("build failed")

// Artifacts are the outputs of one full build.
type Artifacts struct {
	FrontendDir   string
	BackendBinary string
}

// Pipeline builds the frontend and then the backend for one session.
type Pipeline struct {
	cfg     *config.Config
	layout  workspace.Layout
	runner  Runner
	session workspace.SessionID
	log     arbor.ILogger

	escalate func()
}

// NewPipeline creates a pipeline whose outputs are scoped to session.
func NewPipeline(cfg *config.Config, layout workspace.Layout, runner Runner, session workspace.SessionID, log arbor.ILogger) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		layout:  layout,
		runner:  runner,
		session: session,
		log:     log,
	}
}

// OnEscalate registers fn to run right before a failed quiet build is re-run
// with console output.
func (p *Pipeline) OnEscalate(fn func()) {
	p.escalate = fn
}

// Build runs the frontend build followed by the backend build.
func (p *Pipeline) Build(ctx context.Context) (Artifacts, error) {
	frontendDir, err := p.BuildFrontend(ctx)
	if err != nil {
		return Artifacts{}, err
	}

	binary, err := p.BuildBackend(ctx, frontendDir)
	if err != nil {
		return Artifacts{}, err
	}

	return Artifacts{FrontendDir: frontendDir, BackendBinary: binary}, nil
}

// BuildFrontend bundles the frontend and returns its output directory.
func (p *Pipeline) BuildFrontend(ctx context.Context) (string, error) {
	workspaceDir := p.layout.Root

	buildDir, err := p.layout.EnsurePartBuildDir(workspace.Frontend, p.cfg.Mode, p.session)
	if err != nil {
		return "", err
	}

	args := []string{"build", "--dist", buildDir, filepath.Join(workspaceDir, "index.html")}
	if p.cfg.Mode.IsRelease() {
		args = append(args, "--release")
	}

	cmd := Command{
		Name: p.cfg.Manifest.Tools.Frontend,
		Args: args,
		Dir:  workspaceDir,
	}

	if err := p.run(ctx, workspace.Frontend, cmd); err != nil {
		return "", err
	}

	return buildDir, nil
}

// BuildBackend compiles the dev-server binary against frontendDir and copies
// it into the pipeline's backend build directory.
func (p *Pipeline) BuildBackend(ctx context.Context, frontendDir string) (string, error) {
	workspaceDir := p.layout.Root
	binName := p.cfg.Manifest.DevServer.BinName

	buildDir, err := p.layout.EnsurePartBuildDir(workspace.Backend, p.cfg.Mode, p.session)
	if err != nil {
		return "", err
	}

	args := []string{"build", "--bin", binName}
	if p.cfg.Mode.IsRelease() {
		args = append(args, "--release")
	}

	cmd := Command{
		Name: p.cfg.Manifest.Tools.Backend,
		Args: args,
		Dir:  workspaceDir,
		Env:  []string{FrontendBuildDirEnv + "=" + frontendDir},
	}

	if err := p.run(ctx, workspace.Backend, cmd); err != nil {
		return "", err
	}

	targetDir, err := p.targetDirectory(ctx)
	if err != nil {
		return "", err
	}

	src := filepath.Join(targetDir, p.profile(), binaryName(binName))
	dst := filepath.Join(buildDir, binaryName(binName))

	if !fileutil.IsFile(src) {
		return "", fmt.Errorf("failed to copy binary: %s not found", src)
	}
	if err := fileutil.CopyFile(src, dst); err != nil {
		return "", fmt.Errorf("failed to copy binary: %w", err)
	}

	p.log.Debug().Str("binary", dst).Msg("backend artifact ready")

	return dst, nil
}

// run applies the two-phase policy: a quiet attempt, then in serve mode one
// retry with output on the console so the developer sees the failure.
func (p *Pipeline) run(ctx context.Context, part workspace.Part, cmd Command) error {
	if p.cfg.Mode.IsRelease() {
		if err := p.runner.Run(ctx, Invocation{Command: cmd, Output: OutputInherit}); err != nil {
			return fmt.Errorf("%w: %w", ErrBuildFailed, err)
		}
		return nil
	}

	if _, err := p.layout.EnsurePartDataDir(part); err != nil {
		return err
	}

	quiet := Invocation{
		Command:   cmd,
		Output:    OutputCapture,
		StdoutLog: p.layout.LogPath(part, "stdout", workspace.NewID()),
		StderrLog: p.layout.LogPath(part, "stderr", workspace.NewID()),
	}

	err := p.runner.Run(ctx, quiet)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	p.log.Warn().Err(err).Str("part", string(part)).Msg("build failed, retrying with console output")

	if p.escalate != nil {
		p.escalate()
	}

	if err := p.runner.Run(ctx, Invocation{Command: cmd, Output: OutputInherit}); err != nil {
		return fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	return nil
}

// packageMetadata is the part of `cargo metadata` output stackctl reads.
type packageMetadata struct {
	TargetDirectory string `json:"target_directory"`
}

// targetDirectory asks the backend toolchain where it writes its outputs.
func (p *Pipeline) targetDirectory(ctx context.Context) (string, error) {
	out, err := p.runner.Output(ctx, Command{
		Name: p.cfg.Manifest.Tools.Backend,
		Args: []string{"metadata", "--format-version=1", "--no-deps"},
		Dir:  p.layout.Root,
	})
	if err != nil {
		return "", fmt.Errorf("failed to read package metadata: %w", err)
	}

	var meta packageMetadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return "", fmt.Errorf("failed to parse package metadata: %w", err)
	}
	if meta.TargetDirectory == "" {
		return "", errors.New("failed to parse package metadata: target_directory missing")
	}

	return meta.TargetDirectory, nil
}

func (p *Pipeline) profile() string {
	if p.cfg.Mode.IsRelease() {
		return "release"
	}
	return "debug"
}

func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
