package adapters

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

type WorkspaceAdapter struct{}

func NewWorkspaceAdapter() WorkspaceAdapter {
	return WorkspaceAdapter{}
}

// FindPackageXML returns every package.xml below root, sorted by path.
// Build output directories and robenv sandboxes are not descended into.
func (a WorkspaceAdapter) FindPackageXML(root string) ([]string, error) {
	var paths []string
	if root == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("workspace root is empty")
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && shouldSkipWorkspaceDir(path, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == "package.xml" {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to scan workspace").
			WithCause(err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ignoreMarkers exclude a directory tree from catkin and colcon scans.
var ignoreMarkers = []string{"CATKIN_IGNORE", "COLCON_IGNORE", "AMENT_IGNORE"}

func shouldSkipWorkspaceDir(path string, name string) bool {
	switch name {
	case ".catkin_tools", "build", "devel", "debian", "install", "log", ".git":
		return true
	}
	for _, marker := range ignoreMarkers {
		if shared.FileExists(filepath.Join(path, marker)) {
			return true
		}
	}
	return isSandbox(path)
}

func isSandbox(dir string) bool {
	return shared.FileExists(filepath.Join(dir, filepath.FromSlash(types.ManifestRelPath)))
}

var _ ports.WorkspacePort = WorkspaceAdapter{}
