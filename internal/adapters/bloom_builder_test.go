package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avular-robenv/internal/types"
)

const testRules = `#!/usr/bin/make -f
export PKG_CONFIG_PATH=/opt/ros/noetic/lib/pkgconfig
override_dh_auto_configure:
	if [ -f "/opt/ros/noetic/setup.sh" ]; then . "/opt/ros/noetic/setup.sh"; fi && \
	dh_auto_configure -- \
		-DCMAKE_INSTALL_PREFIX="/opt/ros/noetic" \
		-DCMAKE_PREFIX_PATH="/opt/ros/noetic"
`

// scriptedRunner records commands and emulates the files the real tools
// would produce.
type scriptedRunner struct {
	commands []types.CommandRequest
	fail     map[string]error
}

func (r *scriptedRunner) Run(_ context.Context, req types.CommandRequest) (string, error) {
	r.commands = append(r.commands, req)
	for prefix, err := range r.fail {
		if strings.HasPrefix(req.Command, prefix) {
			return "", err
		}
	}
	switch {
	case strings.HasPrefix(req.Command, "bloom-generate"):
		path := filepath.Join(req.Dir, "debian", "rules")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return "", os.WriteFile(path, []byte(testRules), 0o755)
	case strings.HasPrefix(req.Command, "dpkg-deb --build"):
		stage := strings.Trim(strings.TrimPrefix(req.Command, "dpkg-deb --build --root-owner-group "), "'")
		return "", os.WriteFile(stage+".deb", []byte("meta"), 0o644)
	}
	return "", nil
}

func (r *scriptedRunner) names() []string {
	var out []string
	for _, req := range r.commands {
		out = append(out, strings.Fields(req.Command)[0])
	}
	return out
}

func TestBloomBuilderAdapter_Build(t *testing.T) {
	src := t.TempDir()
	module := types.Module{Name: "my_pkg", Path: filepath.Join(src, "my_pkg"), Version: "1.0.0"}
	require.NoError(t, os.MkdirAll(module.Path, 0o755))
	runner := &scriptedRunner{}

	builder := NewBloomBuilderAdapter(runner, "/work/env", types.Distro("noetic"))
	require.NoError(t, builder.Build(t.Context(), module, filepath.Join(src, "x.deb")))

	assert.Equal(t, []string{"bloom-generate", "fakeroot"}, runner.names())
	assert.Equal(t, map[string]string{"Continue [Y/n]?": "n"}, runner.commands[0].Responses)
	assert.Equal(t, module.Path, runner.commands[1].Dir)

	rules, err := os.ReadFile(filepath.Join(module.Path, "debian", "rules"))
	require.NoError(t, err)
	content := string(rules)
	assert.Contains(t, content, "PKG_CONFIG_PATH=/work/env/opt/ros/noetic/lib/pkgconfig")
	assert.Contains(t, content, `. "/work/env/opt/ros/noetic/setup.sh"`)
	assert.Contains(t, content, `-DCMAKE_PREFIX_PATH="/work/env/opt/ros/noetic"`)
	assert.Contains(t, content, `-DCMAKE_INSTALL_PREFIX="/opt/ros/noetic"`)
}

func TestBloomBuilderAdapter_Metapackage(t *testing.T) {
	src := t.TempDir()
	module := types.Module{Name: "my_robot", Path: filepath.Join(src, "my_robot"), Version: "2.0.0", IsMetapackage: true}
	rosDir := filepath.Join(module.Path, "debian", "ros-noetic-my-robot", "opt", "ros", "noetic")
	writeFile(t, filepath.Join(rosDir, "setup.bash"), "# base")
	writeFile(t, filepath.Join(rosDir, "share", "my_robot", "package.xml"), "<package/>")
	makeTarget := filepath.Join(src, "ros-noetic-my-robot_2.0.0-0focal_amd64.deb")
	writeFile(t, makeTarget, "from rules")
	runner := &scriptedRunner{}

	builder := NewBloomBuilderAdapter(runner, "/work/env", types.Distro("noetic"))
	require.NoError(t, builder.Build(t.Context(), module, makeTarget))

	assert.Equal(t, []string{"bloom-generate", "fakeroot", "dpkg-deb"}, runner.names())
	assert.NoFileExists(t, filepath.Join(rosDir, "setup.bash"))
	assert.FileExists(t, filepath.Join(rosDir, "share", "my_robot", "package.xml"))
	content, err := os.ReadFile(makeTarget)
	require.NoError(t, err)
	assert.Equal(t, "meta", string(content))
}

func TestBloomBuilderAdapter_PropagatesCommandFailure(t *testing.T) {
	module := types.Module{Name: "my_pkg", Path: t.TempDir(), Version: "1.0.0"}
	failure := &types.CommandFailedError{Command: "fakeroot debian/rules binary", ExitStatus: 2, Output: "make: *** Error 1"}
	runner := &scriptedRunner{fail: map[string]error{"fakeroot": failure}}

	err := NewBloomBuilderAdapter(runner, "/env", types.Distro("noetic")).Build(t.Context(), module, filepath.Join(t.TempDir(), "x.deb"))
	var failed *types.CommandFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "make: *** Error 1", failed.Output)
}

func TestBloomBuilderAdapter_ClearCache(t *testing.T) {
	module := types.Module{Name: "my_pkg", Path: t.TempDir()}
	writeFile(t, filepath.Join(module.Path, "debian", "rules"), "rules")
	writeFile(t, filepath.Join(module.Path, ".obj-x86_64-linux-gnu", "CMakeCache.txt"), "cache")
	writeFile(t, filepath.Join(module.Path, "package.xml"), "<package/>")

	builder := NewBloomBuilderAdapter(&scriptedRunner{}, "/env", types.Distro("noetic"))
	require.NoError(t, builder.ClearCache(module))
	require.NoError(t, builder.ClearCache(module))

	assert.NoDirExists(t, filepath.Join(module.Path, "debian"))
	assert.NoDirExists(t, filepath.Join(module.Path, ".obj-x86_64-linux-gnu"))
	assert.FileExists(t, filepath.Join(module.Path, "package.xml"))
}
