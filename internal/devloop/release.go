package devloop

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/stackctl/internal/build"
	"github.com/ternarybob/stackctl/internal/ui"
)

// ErrDebugBuildUnsupported rejects a one-shot build without --release.
var ErrDebugBuildUnsupported = errors.New("building distributable in debug mode is not yet supported")

// Builder produces a full set of artifacts.
type Builder interface {
	Build(ctx context.Context) (build.Artifacts, error)
}

// Release runs a single release build. Nothing is built unless release is set.
func Release(ctx context.Context, release bool, builder Builder, reporter ui.Reporter) (build.Artifacts, error) {
	if !release {
		return build.Artifacts{}, ErrDebugBuildUnsupported
	}

	reporter.ReleaseStarted()
	started := time.Now()

	artifacts, err := builder.Build(ctx)
	if err != nil {
		return build.Artifacts{}, err
	}

	reporter.ReleaseFinished(artifacts.FrontendDir, artifacts.BackendBinary, time.Since(started))

	return artifacts, nil
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context) (build.Artifacts, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context) (build.Artifacts, error) {
	return f(ctx)
}
