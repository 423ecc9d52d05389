package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/stackctl/internal/devloop"
	"github.com/ternarybob/stackctl/internal/service"
)

const testManifest = `[dev-server]
bin_name = "server"
listen = "127.0.0.1:3000"
`

func writeManifest(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "stackable.toml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0644))
	return root, path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// executeSplit runs the root command with stdout and stderr kept apart.
func executeSplit(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestBuild_WithoutReleaseIsRejected(t *testing.T) {
	root, manifest := writeManifest(t)

	_, err := execute(t, "build", "--manifest-path", manifest)
	require.Error(t, err)
	assert.ErrorIs(t, err, devloop.ErrDebugBuildUnsupported)

	assert.NoDirExists(t, filepath.Join(root, "build"))
	assert.NoDirExists(t, filepath.Join(root, ".stackable"))
}

func TestServe_MissingManifest(t *testing.T) {
	_, err := execute(t, "serve", "--manifest-path", filepath.Join(t.TempDir(), "stackable.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to find workspace directory")
}

func TestServe_InvalidManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stackable.toml")
	require.NoError(t, os.WriteFile(path, []byte("[dev-server]\n"), 0644))

	_, err := execute(t, "serve", "--manifest-path", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dev-server.bin_name is required")
}

func TestServe_RejectsArguments(t *testing.T) {
	_, err := execute(t, "serve", "extra")
	assert.Error(t, err)
}

func TestStop_NothingRunning(t *testing.T) {
	_, manifest := writeManifest(t)

	_, err := execute(t, "stop", "--manifest-path", manifest)
	assert.ErrorIs(t, err, service.ErrNotServing)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "stackctl dev\n", out)
}

func TestRoot_Flags(t *testing.T) {
	cmd := newRootCmd()

	flag := cmd.PersistentFlags().Lookup("manifest-path")
	require.NotNil(t, flag)
	assert.Equal(t, "stackable.toml", flag.DefValue)

	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("open"))

	buildCmd, _, err := cmd.Find([]string{"build"})
	require.NoError(t, err)
	assert.NotNil(t, buildCmd.Flags().Lookup("release"))
}

const fakeTrunk = `#!/bin/sh
mkdir -p "$3" && echo '<html></html>' > "$3/index.html"
`

const fakeCargo = `#!/bin/sh
case "$1" in
metadata)
	printf '{"target_directory":"%s/target"}' "$(pwd)"
	;;
build)
	mkdir -p target/release
	printf '#!/bin/sh\n' > target/release/server
	chmod +x target/release/server
	;;
esac
`

func TestBuild_ReleaseWithToolchain(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain is a shell script")
	}

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	tools := filepath.Join(root, "tools")
	require.NoError(t, os.MkdirAll(tools, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tools, "trunk"), []byte(fakeTrunk), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(tools, "cargo"), []byte(fakeCargo), 0755))

	manifest := filepath.Join(root, "stackable.toml")
	content := testManifest + "\n[tools]\n" +
		"frontend = \"" + filepath.Join(tools, "trunk") + "\"\n" +
		"backend = \"" + filepath.Join(tools, "cargo") + "\"\n"
	require.NoError(t, os.WriteFile(manifest, []byte(content), 0644))

	stdout, stderr, err := executeSplit(t, "build", "--release", "--manifest-path", manifest)
	require.NoError(t, err)

	binary := filepath.Join(root, "build", "backend", "server")
	assert.FileExists(t, binary)
	assert.FileExists(t, filepath.Join(root, "build", "frontend", "index.html"))
	assert.Contains(t, stderr, "Building Release Distribution...")
	assert.Contains(t, stderr, "The server binary is available at: "+binary)
	assert.NotContains(t, stdout, "Building Release Distribution...")
}
