package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avular-robenv/internal/types"
)

func launchFixture(t *testing.T, archive *fakeArchive, sources []string, packaged []string) (types.Module, types.Installable) {
	t.Helper()
	dir := t.TempDir()
	for _, rel := range sources {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("<launch/>"), 0o644))
	}
	debName := "ros-noetic-demo_1.0.0-0focal_amd64.deb"
	archive.register(debName, listing(packaged...))
	module := types.Module{Name: "demo", Path: dir, Version: "1.0.0"}
	return module, types.Installable{Name: "demo", DebName: debName, Path: filepath.Join(dir, debName)}
}

func TestLaunchFileChecker(t *testing.T) {
	sources := []string{"launch/demo.launch", "launch/extra.launch", "config/params.yaml"}
	packaged := []string{"opt/", "opt/ros/noetic/share/demo/launch/demo.launch"}

	tests := []struct {
		name        string
		mode        types.LaunchFileCheck
		wantMissing []string
		wantErr     bool
	}{
		{name: "off", mode: types.LaunchFileCheckOff},
		{name: "warn", mode: types.LaunchFileCheckWarn, wantMissing: []string{filepath.Join("launch", "extra.launch")}},
		{name: "will fail", mode: types.LaunchFileCheckWillFail, wantMissing: []string{filepath.Join("launch", "extra.launch")}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			archive := newFakeArchive()
			module, installable := launchFixture(t, archive, sources, packaged)

			diagnostic, err := NewLaunchFileChecker(archive, tt.mode).Check(t.Context(), module, installable)
			if tt.wantErr {
				var missing *types.LaunchFilesMissingError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, "demo", missing.Diagnostic.Package)
			} else {
				require.NoError(t, err)
			}
			if tt.wantMissing == nil {
				assert.Nil(t, diagnostic)
				return
			}
			require.NotNil(t, diagnostic)
			assert.Equal(t, tt.wantMissing, diagnostic.Files)
		})
	}
}

func TestLaunchFileChecker_AllPackaged(t *testing.T) {
	archive := newFakeArchive()
	module, installable := launchFixture(t, archive,
		[]string{"launch/demo.launch"},
		[]string{"opt/ros/noetic/share/demo/launch/demo.launch"},
	)
	diagnostic, err := NewLaunchFileChecker(archive, types.LaunchFileCheckWillFail).Check(t.Context(), module, installable)
	require.NoError(t, err)
	assert.Nil(t, diagnostic)
}
