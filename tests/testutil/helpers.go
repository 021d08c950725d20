// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"avular-robenv/internal/adapters"
	"avular-robenv/internal/types"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// NewSandbox creates an empty robenv for distro under base and returns
// its root.
func NewSandbox(t *testing.T, base string, distro string) string {
	t.Helper()
	root := filepath.Join(base, "robenv")
	require.NoError(t, adapters.NewManifestFileAdapter(root).Save(types.NewManifest(distro)))
	return root
}

// WritePackageXML adds a format 2 package named name to workspace.
// deps become build dependencies.
func WritePackageXML(t *testing.T, workspace string, name string, deps ...string) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "<?xml version=\"1.0\"?>\n<package format=\"2\">\n  <name>%s</name>\n  <version>1.0.0</version>\n", name)
	b.WriteString("  <maintainer email=\"ci@example.com\">ci</maintainer>\n  <license>MIT</license>\n")
	b.WriteString("  <buildtool_depend>catkin</buildtool_depend>\n")
	for _, dep := range deps {
		fmt.Fprintf(&b, "  <build_depend>%s</build_depend>\n", dep)
	}
	b.WriteString("</package>\n")
	dir := filepath.Join(workspace, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "package.xml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return dir
}
