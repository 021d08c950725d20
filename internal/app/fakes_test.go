package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"avular-robenv/internal/adapters"
	"avular-robenv/internal/core"
	"avular-robenv/internal/types"
)

type fakeStore struct {
	mu        sync.Mutex
	installed map[string]string
	opts      []types.InstallOptions
	failures  map[string]error
	removed   []string
	forced    []bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{installed: map[string]string{}, failures: map[string]error{}}
}

func (s *fakeStore) Install(_ context.Context, installable types.Installable, opts types.InstallOptions) (types.InstallOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[installable.Name]; err != nil {
		return "", err
	}
	s.opts = append(s.opts, opts)
	if _, ok := s.installed[installable.Name]; ok && !opts.Overwrite {
		return types.InstallOutcomeSkipped, nil
	}
	s.installed[installable.Name] = installable.Path
	return types.InstallOutcomeInstalled, nil
}

func (s *fakeStore) Uninstall(_ context.Context, name string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.installed[name]; !ok {
		return &types.NotInstalledError{Package: name}
	}
	delete(s.installed, name)
	s.removed = append(s.removed, name)
	s.forced = append(s.forced, force)
	return nil
}

func (s *fakeStore) InstalledPackages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.installed))
	for name := range s.installed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *fakeStore) ArtifactPath(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.installed[name]
	return path, ok
}

type fakeBuilder struct {
	mu       sync.Mutex
	failures map[string]error
	built    []string
	cleared  []string
}

func (b *fakeBuilder) Build(_ context.Context, module types.Module, makeTarget string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.built = append(b.built, module.Name)
	if err := b.failures[module.Name]; err != nil {
		return err
	}
	return os.WriteFile(makeTarget, []byte("deb:"+module.Name), 0o644)
}

func (b *fakeBuilder) ClearCache(module types.Module) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared = append(b.cleared, module.Name)
	return nil
}

type fakeResolver struct {
	unresolved map[string]bool
}

func (r fakeResolver) Resolve(_ context.Context, name string) (string, error) {
	if r.unresolved[name] {
		return "", &types.NotResolvableError{Name: name}
	}
	return types.Distro("noetic").SystemPackageName(name), nil
}

type fakeUpdater struct {
	calls []types.Distro
}

func (u *fakeUpdater) Update(_ context.Context, distro types.Distro) error {
	u.calls = append(u.calls, distro)
	return nil
}

type fakeDownloader struct {
	refs []string
}

func (d *fakeDownloader) Download(_ context.Context, ref string, destDir string) (string, error) {
	d.refs = append(d.refs, ref)
	name := filepath.Base(ref)
	if !strings.HasSuffix(name, ".deb") {
		name = fmt.Sprintf("%s_1.0_amd64.deb", ref)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, name)
	return path, os.WriteFile(path, []byte("downloaded"), 0o644)
}

type fakeControl struct {
	fields map[string]map[string]string
}

func (c fakeControl) ControlFields(_ context.Context, debPath string, _ ...string) (map[string]string, error) {
	return c.fields[debPath], nil
}

type appFixture struct {
	service    Service
	sandbox    Sandbox
	store      *fakeStore
	builder    *fakeBuilder
	updater    *fakeUpdater
	downloader *fakeDownloader
	base       string
	root       string
	workspace  string
	dist       string
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	base := t.TempDir()
	f := &appFixture{
		store:      newFakeStore(),
		builder:    &fakeBuilder{failures: map[string]error{}},
		updater:    &fakeUpdater{},
		downloader: &fakeDownloader{},
		base:       base,
		root:       filepath.Join(base, "robenv"),
		workspace:  filepath.Join(base, "src"),
		dist:       filepath.Join(base, "dist"),
	}
	require.NoError(t, os.MkdirAll(f.workspace, 0o755))
	f.sandbox = Sandbox{
		Root:         f.root,
		Distro:       "noetic",
		Store:        f.store,
		Resolver:     fakeResolver{},
		Updater:      f.updater,
		Translations: adapters.NewRosdepFileAdapter(f.root),
		Builder:      f.builder,
		Logs:         adapters.NewLogFileAdapter(filepath.Join(f.root, types.LogsRelDir)),
		Downloader:   f.downloader,
	}
	f.service = Service{
		Workspace:       adapters.NewWorkspaceAdapter(),
		PackageXML:      adapters.NewPackageXMLAdapter(),
		Catkin:          adapters.NewCatkinProfileAdapter(),
		Control:         fakeControl{},
		Token:           core.NewCancelToken(),
		ExecutorOptions: []core.ExecutorOption{core.WithInterruptSignals()},
		Codename:        "focal",
		Arch:            "amd64",
		Open: func(_ context.Context, root string) (Sandbox, error) {
			if root != f.root {
				return Sandbox{}, fmt.Errorf("unexpected root %s", root)
			}
			return f.sandbox, nil
		},
	}
	return f
}

// writePackage adds a package.xml for name to the workspace. deps are
// build dependencies.
func (f *appFixture) writePackage(t *testing.T, name string, deps ...string) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "<package format=\"2\">\n  <name>%s</name>\n  <version>1.0.0</version>\n", name)
	for _, dep := range deps {
		fmt.Fprintf(&b, "  <build_depend>%s</build_depend>\n", dep)
	}
	b.WriteString("</package>\n")
	dir := filepath.Join(f.workspace, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.xml"), []byte(b.String()), 0o644))
}

func (f *appFixture) writeDeb(t *testing.T, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(f.dist, 0o755))
	path := filepath.Join(f.dist, name)
	require.NoError(t, os.WriteFile(path, []byte("deb"), 0o644))
	return path
}
