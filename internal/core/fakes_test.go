package core

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"avular-robenv/internal/types"
)

type fakeResolver struct {
	distro     string
	unresolved map[string]bool
}

func (r fakeResolver) Resolve(_ context.Context, name string) (string, error) {
	if r.unresolved[name] {
		return "", &types.NotResolvableError{Name: name}
	}
	distro := r.distro
	if distro == "" {
		distro = "noetic"
	}
	return types.Distro(distro).SystemPackageName(name), nil
}

type fakeBuilder struct {
	mu       sync.Mutex
	failures map[string]error
	built    []string
	cleared  map[string]int
	block    map[string]chan struct{}
}

func (b *fakeBuilder) Build(ctx context.Context, module types.Module, makeTarget string) error {
	b.mu.Lock()
	wait := b.block[module.Name]
	b.mu.Unlock()
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return &types.CommandAbortedError{Command: "fakeroot debian/rules binary"}
		}
	}
	b.mu.Lock()
	b.built = append(b.built, module.Name)
	err := b.failures[module.Name]
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(makeTarget, []byte("deb:"+module.Name), 0o644)
}

func (b *fakeBuilder) ClearCache(module types.Module) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cleared == nil {
		b.cleared = map[string]int{}
	}
	b.cleared[module.Name]++
	return nil
}

func (b *fakeBuilder) Built() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]string(nil), b.built...)
	sort.Strings(out)
	return out
}

type fakeChecker struct {
	missing map[string][]string
	fail    bool
}

func (c fakeChecker) Check(_ context.Context, module types.Module, _ types.Installable) (*types.MissingFilesDiagnostic, error) {
	files := c.missing[module.Name]
	if len(files) == 0 {
		return nil, nil
	}
	diagnostic := &types.MissingFilesDiagnostic{Package: module.Name, Files: files}
	if c.fail {
		return diagnostic, &types.LaunchFilesMissingError{Diagnostic: *diagnostic}
	}
	return diagnostic, nil
}

type fakeInstaller struct {
	mu        sync.Mutex
	installed []string
	failures  map[string]error
	// during runs before the install is recorded; an error fails it.
	during    func(ctx context.Context, name string) error
}

func (i *fakeInstaller) Install(ctx context.Context, installable types.Installable, _ types.InstallOptions) (types.InstallOutcome, error) {
	if i.during != nil {
		if err := i.during(ctx, installable.Name); err != nil {
			return "", err
		}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.failures[installable.Name]; err != nil {
		return "", err
	}
	i.installed = append(i.installed, installable.Name)
	return types.InstallOutcomeInstalled, nil
}

type fakeLogSink struct {
	dir string
}

func (l fakeLogSink) WriteLog(module string, output string) (string, error) {
	path := filepath.Join(l.dir, module+".log")
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(output), 0o644)
}

// fakeArchive serves content listings and relationships from memory and
// extracts by creating the listed files under the root.
type fakeArchive struct {
	mu            sync.Mutex
	contents      map[string][]types.ContentEntry
	relationships map[string][]types.Relationship
	extractErr    map[string]error
	listCalls     map[string]int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		contents:      map[string][]types.ContentEntry{},
		relationships: map[string][]types.Relationship{},
		extractErr:    map[string]error{},
		listCalls:     map[string]int{},
	}
}

// register associates a deb file name with its listing. Lookups use the
// base name so retained copies resolve to the same listing.
func (a *fakeArchive) register(debName string, entries []types.ContentEntry, rels ...types.Relationship) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.contents[debName] = entries
	a.relationships[debName] = rels
}

func (a *fakeArchive) Contents(_ context.Context, debPath string) ([]types.ContentEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls[filepath.Base(debPath)]++
	return a.contents[filepath.Base(debPath)], nil
}

func (a *fakeArchive) Relationships(_ context.Context, debPath string) ([]types.Relationship, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.relationships[filepath.Base(debPath)], nil
}

func (a *fakeArchive) Extract(_ context.Context, debPath string, root string) error {
	a.mu.Lock()
	entries := a.contents[filepath.Base(debPath)]
	err := a.extractErr[filepath.Base(debPath)]
	a.mu.Unlock()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		dest := filepath.Join(root, entry.RelativePath())
		switch entry.Kind {
		case types.ContentKindDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
		case types.ContentKindSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(entry.Target, dest); err != nil {
				return err
			}
		default:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(dest, []byte(filepath.Base(debPath)), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

type fakeHost struct {
	versions map[string]string
}

func (h fakeHost) InstalledVersion(_ context.Context, name string) (string, bool, error) {
	version, ok := h.versions[name]
	return version, ok, nil
}

// listing builds content entries from short specs: a trailing "/" marks
// a directory, "a -> b" a symlink.
func listing(paths ...string) []types.ContentEntry {
	entries := make([]types.ContentEntry, 0, len(paths))
	for _, p := range paths {
		switch {
		case strings.Contains(p, " -> "):
			parts := strings.SplitN(p, " -> ", 2)
			entries = append(entries, types.ContentEntry{Path: "./" + parts[0], Kind: types.ContentKindSymlink, Target: parts[1]})
		case strings.HasSuffix(p, "/"):
			entries = append(entries, types.ContentEntry{Path: "./" + strings.TrimSuffix(p, "/"), Kind: types.ContentKindDir})
		default:
			entries = append(entries, types.ContentEntry{Path: "./" + p, Kind: types.ContentKindFile})
		}
	}
	return entries
}
