package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/stackctl/internal/build"
	"github.com/ternarybob/stackctl/internal/config"
	"github.com/ternarybob/stackctl/internal/devloop"
	"github.com/ternarybob/stackctl/internal/logger"
	"github.com/ternarybob/stackctl/internal/opener"
	"github.com/ternarybob/stackctl/internal/service"
	"github.com/ternarybob/stackctl/internal/supervisor"
	"github.com/ternarybob/stackctl/internal/ui"
	"github.com/ternarybob/stackctl/internal/watcher"
	"github.com/ternarybob/stackctl/internal/workspace"
)

type rootOptions struct {
	manifestPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "stackctl",
		Short: "Development loop for full-stack web applications",
		Long: `stackctl builds the frontend bundle and the backend server of a workspace,
runs the server, and rebuilds and restarts it whenever a source file changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.manifestPath, "manifest-path", config.DefaultManifestName,
		"path to the workspace manifest")

	cmd.AddCommand(
		newServeCmd(opts),
		newBuildCmd(opts),
		newStopCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build, run and rebuild the application on change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, open)
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "open the application in a browser after the first build")

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, open bool) error {
	cfg, err := config.Load(opts.manifestPath, config.ModeServe)
	if err != nil {
		return err
	}

	layout := workspace.FromConfig(cfg)
	log := logger.SetupLogger(cfg, layout.ServiceLogPath())

	lock, err := service.Acquire(layout, log)
	if err != nil {
		return err
	}
	defer lock.Release()

	w, err := watcher.NewWatcher(layout.Root, watcher.WithLogger(log))
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	out := cmd.OutOrStdout()
	tty := ui.IsTTY(out)

	sup := supervisor.New(cfg, layout, build.NewLocalRunner(log), ui.NewProgress(out, tty), log)
	loop := devloop.New(devloop.FromSupervisor(sup), w.Triggers(), ui.NewConsole(out, tty), opener.New(), open, log)

	log.Info().Str("workspace", layout.Root).Str("listen", cfg.Manifest.DevServer.Listen).Msg("serving")

	return loop.Run(cmd.Context())
}

func newBuildCmd(opts *rootOptions) *cobra.Command {
	var release bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a distributable of the application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			builder := devloop.BuilderFunc(func(ctx context.Context) (build.Artifacts, error) {
				return releaseBuild(ctx, opts)
			})

			_, err := devloop.Release(cmd.Context(), release, builder, ui.NewConsole(cmd.ErrOrStderr(), false))
			return err
		},
	}

	cmd.Flags().BoolVar(&release, "release", false, "build with optimisations")

	return cmd
}

func releaseBuild(ctx context.Context, opts *rootOptions) (build.Artifacts, error) {
	cfg, err := config.Load(opts.manifestPath, config.ModeRelease)
	if err != nil {
		return build.Artifacts{}, err
	}

	layout := workspace.FromConfig(cfg)
	log := logger.SetupLogger(cfg, layout.ServiceLogPath())

	pipeline := build.NewPipeline(cfg, layout, build.NewLocalRunner(log), workspace.NewSessionID(), log)
	return pipeline.Build(ctx)
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the serve session running in this workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.manifestPath, config.ModeServe)
			if err != nil {
				return err
			}

			layout := workspace.FromConfig(cfg)
			_, pid := service.IsRunning(layout)
			if err := service.StopRunning(layout); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stopped stackctl serve (pid %d)\n", pid)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "stackctl %s\n", version)
		},
	}
}
