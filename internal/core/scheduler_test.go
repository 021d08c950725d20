package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avular-robenv/internal/types"
)

type schedulerFixture struct {
	scheduler *BuildScheduler
	builder   *fakeBuilder
	installer *fakeInstaller
	token     *CancelToken
	dist      string
	logs      string
	src       string
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()
	root := t.TempDir()
	f := &schedulerFixture{
		builder:   &fakeBuilder{failures: map[string]error{}},
		installer: &fakeInstaller{failures: map[string]error{}},
		token:     NewCancelToken(),
		dist:      filepath.Join(root, "dist"),
		logs:      filepath.Join(root, "env", "logs"),
		src:       filepath.Join(root, "src"),
	}
	f.scheduler = &BuildScheduler{
		Builder:         f.builder,
		Checker:         fakeChecker{},
		Installer:       f.installer,
		Resolver:        fakeResolver{},
		Logs:            fakeLogSink{dir: f.logs},
		Codename:        "focal",
		Arch:            "amd64",
		Token:           f.token,
		ExecutorOptions: []ExecutorOption{WithInterruptSignals()},
	}
	return f
}

func (f *schedulerFixture) module(t *testing.T, name string, deps ...string) types.Module {
	t.Helper()
	dir := filepath.Join(f.src, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return types.Module{Name: name, Path: dir, Version: "1.2.3", BuildDepends: deps}
}

func (f *schedulerFixture) stages(t *testing.T, modules ...types.Module) [][]types.Module {
	t.Helper()
	_, external := Discover(modules)
	stages, err := BuildStages(modules, external)
	require.NoError(t, err)
	return stages
}

func (f *schedulerFixture) options(canFail bool, overwrite bool) BuildOptions {
	return BuildOptions{MaxWorkers: 2, CanFail: canFail, Overwrite: overwrite, DistDir: f.dist}
}

func TestBuildWorkspace_InstallsStageByStage(t *testing.T) {
	f := newSchedulerFixture(t)
	stages := f.stages(t, f.module(t, "a"), f.module(t, "b", "a"), f.module(t, "c", "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(false, false))
	require.NoError(t, err)

	assert.Empty(t, result.FailedPackages)
	require.Len(t, result.Installables, 3)
	assert.Equal(t, "a", result.Installables[0].Name)
	assert.ElementsMatch(t, []string{"b", "c"}, []string{result.Installables[1].Name, result.Installables[2].Name})

	require.Len(t, f.installer.installed, 3)
	assert.Equal(t, "a", f.installer.installed[0])

	debPath := filepath.Join(f.dist, "ros-noetic-a_1.2.3-0focal_amd64.deb")
	assert.FileExists(t, debPath)
	assert.Equal(t, debPath, result.Installables[0].Path)
	assert.Equal(t, "ros-noetic-a_1.2.3-0focal_amd64.deb", result.Installables[0].DebName)

	states := f.scheduler.States()
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, types.ModuleStateInstalled, states[name])
	}
	assert.Equal(t, 2, f.builder.cleared["a"])
}

func TestBuildWorkspace_FailureStopsPipeline(t *testing.T) {
	f := newSchedulerFixture(t)
	f.builder.failures["b"] = &types.CommandFailedError{Command: "fakeroot debian/rules binary", ExitStatus: 2, Output: "compile error"}
	stages := f.stages(t, f.module(t, "a"), f.module(t, "b", "a"), f.module(t, "c", "a"), f.module(t, "d", "c"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(false, false))
	require.Error(t, err)
	var failed *types.CommandFailedError
	require.True(t, errors.As(err, &failed))

	assert.Equal(t, []string{"b"}, result.FailedPackages)
	assert.Equal(t, []string{"a"}, f.installer.installed)
	assert.NotContains(t, f.builder.Built(), "d")
	assert.NotEqual(t, types.ModuleStateInstalled, f.scheduler.States()["c"])
}

func TestBuildWorkspace_CanFailContinues(t *testing.T) {
	f := newSchedulerFixture(t)
	f.builder.failures["b"] = &types.CommandFailedError{Command: "fakeroot debian/rules binary", ExitStatus: 2, Output: "compile error"}
	stages := f.stages(t, f.module(t, "a"), f.module(t, "b", "a"), f.module(t, "c", "a"), f.module(t, "d", "c"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(true, false))
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, result.FailedPackages)
	assert.ElementsMatch(t, []string{"a", "c", "d"}, f.installer.installed)
	assert.Contains(t, f.builder.Built(), "d")

	content, err := os.ReadFile(filepath.Join(f.logs, "b.log"))
	require.NoError(t, err)
	assert.Equal(t, "compile error", string(content))
	assert.Equal(t, types.ModuleStateBuildFailed, f.scheduler.States()["b"])
}

func TestBuildWorkspace_AbortPropagatesWithCanFail(t *testing.T) {
	f := newSchedulerFixture(t)
	f.builder.failures["a"] = &types.CommandAbortedError{Command: "bloom-generate", Output: "interrupted"}
	stages := f.stages(t, f.module(t, "a"), f.module(t, "b", "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(true, false))
	var aborted *types.CommandAbortedError
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, []string{"a"}, result.FailedPackages)
	assert.Empty(t, f.installer.installed)
}

func TestBuildWorkspace_SkipsExistingArtifacts(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, os.MkdirAll(f.dist, 0o755))
	existing := filepath.Join(f.dist, "ros-noetic-a_1.2.3-0focal_amd64.deb")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))
	stages := f.stages(t, f.module(t, "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(false, false))
	require.NoError(t, err)

	assert.Empty(t, result.Installables)
	assert.Empty(t, f.builder.Built())
	assert.Empty(t, f.installer.installed)
	assert.Equal(t, types.ModuleStateSkippedExists, f.scheduler.States()["a"])
	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "old", string(content))
}

func TestBuildWorkspace_OverwriteRebuilds(t *testing.T) {
	f := newSchedulerFixture(t)
	require.NoError(t, os.MkdirAll(f.dist, 0o755))
	existing := filepath.Join(f.dist, "ros-noetic-a_1.2.3-0focal_amd64.deb")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))
	stages := f.stages(t, f.module(t, "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(false, true))
	require.NoError(t, err)

	require.Len(t, result.Installables, 1)
	content, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "deb:a", string(content))
}

func TestBuildWorkspace_RecordsMissingLaunchFiles(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.Checker = fakeChecker{missing: map[string][]string{"a": {"launch/a.launch"}}}
	stages := f.stages(t, f.module(t, "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(false, false))
	require.NoError(t, err)

	require.Len(t, result.MissingFiles, 1)
	assert.Equal(t, "a", result.MissingFiles[0].Package)
	assert.Equal(t, []string{"launch/a.launch"}, result.MissingFiles[0].Files)
	assert.Empty(t, result.FailedPackages)
	assert.Equal(t, []string{"a"}, f.installer.installed)
}

func TestBuildWorkspace_InstallFailureFollowsPolicy(t *testing.T) {
	f := newSchedulerFixture(t)
	f.installer.failures["b"] = &types.FileConflictError{Path: "/env/opt/ros/noetic/lib/x.so", Owners: []string{"a"}}
	stages := f.stages(t, f.module(t, "a"), f.module(t, "b", "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(true, false))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, result.FailedPackages)
	assert.Equal(t, types.ModuleStateInstallFailed, f.scheduler.States()["b"])
	assert.FileExists(t, filepath.Join(f.logs, "b.log"))

	f2 := newSchedulerFixture(t)
	f2.installer.failures["b"] = f.installer.failures["b"]
	stages = f2.stages(t, f2.module(t, "a"), f2.module(t, "b", "a"))
	_, err = f2.scheduler.BuildWorkspace(t.Context(), stages, f2.options(false, false))
	var conflict *types.FileConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestBuildWorkspace_InterruptDuringInstallAborts(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.ExecutorOptions = []ExecutorOption{WithInterruptSignals(syscall.SIGUSR2)}
	f.installer.during = func(ctx context.Context, name string) error {
		if name != "a" {
			return nil
		}
		if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR2); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return errors.New("install context was not cancelled")
		}
	}
	stages := f.stages(t, f.module(t, "a"), f.module(t, "b", "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(true, false))
	var aborted *types.CommandAbortedError
	require.True(t, errors.As(err, &aborted), "got %v", err)
	assert.Contains(t, aborted.Command, "ros-noetic-a_1.2.3-0focal_amd64.deb")
	assert.True(t, f.token.IsSet())
	assert.Equal(t, []string{"a"}, result.FailedPackages)
	assert.Empty(t, f.installer.installed)
	assert.NotContains(t, f.builder.Built(), "b")
}

func TestBuildWorkspace_MissingLaunchFilesFailEvenWithCanFail(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.Checker = fakeChecker{missing: map[string][]string{"a": {"launch/a.launch"}}, fail: true}
	stages := f.stages(t, f.module(t, "a"), f.module(t, "b", "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(true, false))
	var missing *types.LaunchFilesMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"a"}, result.FailedPackages)
	assert.Empty(t, f.installer.installed)
	assert.NotContains(t, f.builder.Built(), "b")
}

func TestBuildWorkspace_CancelledTokenStopsBeforeStage(t *testing.T) {
	f := newSchedulerFixture(t)
	f.token.Set()
	stages := f.stages(t, f.module(t, "a"))

	_, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(true, false))
	var cancelled *types.CancelledError
	require.True(t, errors.As(err, &cancelled))
	assert.Empty(t, f.builder.Built())
}

func TestBuildWorkspace_UnresolvableModule(t *testing.T) {
	f := newSchedulerFixture(t)
	f.scheduler.Resolver = fakeResolver{unresolved: map[string]bool{"a": true}}
	stages := f.stages(t, f.module(t, "a"))

	result, err := f.scheduler.BuildWorkspace(t.Context(), stages, f.options(false, false))
	var notResolvable *types.NotResolvableError
	require.True(t, errors.As(err, &notResolvable))
	assert.Equal(t, []string{"a"}, result.FailedPackages)
}

func TestBuildWorkspace_RequiresDistDir(t *testing.T) {
	f := newSchedulerFixture(t)
	_, err := f.scheduler.BuildWorkspace(t.Context(), nil, BuildOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dist directory is empty")
}
