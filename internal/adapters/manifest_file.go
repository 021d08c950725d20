package adapters

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/renameio"
	"gopkg.in/yaml.v3"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/types"
)

// ManifestFileAdapter keeps the sandbox manifest in robenv/settings.yaml.
type ManifestFileAdapter struct {
	Root string
}

func NewManifestFileAdapter(root string) ManifestFileAdapter {
	return ManifestFileAdapter{Root: root}
}

func (a ManifestFileAdapter) Path() string {
	return filepath.Join(a.Root, filepath.FromSlash(types.ManifestRelPath))
}

func (a ManifestFileAdapter) Load() (types.Manifest, error) {
	data, err := os.ReadFile(a.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return types.Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg(fmt.Sprintf("no robenv found at %s", a.Root)).
			WithCause(err)
	}
	if err != nil {
		return types.Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read robenv settings").
			WithCause(err)
	}
	var manifest types.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return types.Manifest{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse %s", a.Path())).
			WithCause(err)
	}
	if manifest.InstalledPackages == nil {
		manifest.InstalledPackages = map[string]string{}
	}
	return manifest, nil
}

func (a ManifestFileAdapter) Save(manifest types.Manifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode robenv settings").
			WithCause(err)
	}
	if err := os.MkdirAll(filepath.Dir(a.Path()), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create robenv directory").
			WithCause(err)
	}
	if err := renameio.WriteFile(a.Path(), data, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write robenv settings").
			WithCause(err)
	}
	return nil
}

// Exists reports whether root holds a sandbox manifest.
func (a ManifestFileAdapter) Exists() bool {
	info, err := os.Stat(a.Path())
	return err == nil && !info.IsDir()
}

// LocateSandbox walks up from start looking for a sandbox: either a
// directory holding the manifest itself or one with a child named name
// that does.
func LocateSandbox(start string, name string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid start directory").
			WithCause(err)
	}
	for {
		for _, candidate := range []string{dir, filepath.Join(dir, name)} {
			if NewManifestFileAdapter(candidate).Exists() {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg(fmt.Sprintf("no robenv found from %s", start))
}

var _ ports.ManifestPort = ManifestFileAdapter{}
