package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"avular-robenv/internal/policies"
	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

const contentsCacheSize = 256

// minDependentWorkers is the lower bound for the dependent scan pool.
const minDependentWorkers = 4

// PackageStore installs artifacts into a sandbox root and keeps the
// manifest of what is installed there.
type PackageStore struct {
	root     string
	manifest ports.ManifestPort
	archive  ports.ArchivePort
	host     ports.HostPackagesPort
	resolver ports.ResolverPort
	token    *CancelToken
	execOpts []ExecutorOption
	contents *lru.Cache[string, []types.ContentEntry]

	mu    sync.Mutex
	state types.Manifest
}

type StoreOption func(*PackageStore)

// WithStoreCancelToken sets the token used by the store's executors.
func WithStoreCancelToken(token *CancelToken) StoreOption {
	return func(s *PackageStore) {
		s.token = token
	}
}

// WithStoreExecutorOptions passes options to the executors the store
// creates for dependent scans.
func WithStoreExecutorOptions(opts ...ExecutorOption) StoreOption {
	return func(s *PackageStore) {
		s.execOpts = append(s.execOpts, opts...)
	}
}

func NewPackageStore(
	ctx context.Context,
	root string,
	manifest ports.ManifestPort,
	archive ports.ArchivePort,
	host ports.HostPackagesPort,
	resolver ports.ResolverPort,
	opts ...StoreOption,
) (*PackageStore, error) {
	assert.NotEmpty(ctx, root, "sandbox root must be set")
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid sandbox root").
			WithCause(err)
	}
	cache, err := lru.New[string, []types.ContentEntry](contentsCacheSize)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create contents cache").
			WithCause(err)
	}
	state, err := manifest.Load()
	if err != nil {
		return nil, err
	}
	if state.InstalledPackages == nil {
		state.InstalledPackages = map[string]string{}
	}
	for name, path := range state.InstalledPackages {
		assert.NotEmpty(ctx, existingPath(path), fmt.Sprintf("manifest entry %s references missing artifact %s", name, path))
	}
	store := &PackageStore{
		root:     absRoot,
		manifest: manifest,
		archive:  archive,
		host:     host,
		resolver: resolver,
		contents: cache,
		state:    state,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

func (s *PackageStore) Root() string {
	return s.root
}

func (s *PackageStore) ROSDistro() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ROSDistro
}

func (s *PackageStore) PackagesDir() string {
	return filepath.Join(s.root, filepath.FromSlash(types.PackagesRelDir))
}

func (s *PackageStore) IsInstalled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.InstalledPackages[name]
	return ok
}

// InstalledPackages returns the installed package names, sorted.
func (s *PackageStore) InstalledPackages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.state.InstalledPackages)
}

// ArtifactPath returns the retained artifact of an installed package.
func (s *PackageStore) ArtifactPath(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.state.InstalledPackages[name]
	return path, ok
}

func (s *PackageStore) Install(ctx context.Context, installable types.Installable, opts types.InstallOptions) (types.InstallOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := log.Ctx(ctx).With().Str("package", installable.Name).Logger()
	if opts.CheckDependencies {
		if err := s.checkDependencies(ctx, installable); err != nil {
			return "", err
		}
	}

	if _, ok := s.state.InstalledPackages[installable.Name]; ok {
		if !opts.Overwrite {
			logger.Info().Msg("already installed, skipping")
			return types.InstallOutcomeSkipped, nil
		}
		logger.Info().Msg("reinstalling")
		if err := s.uninstallLocked(ctx, installable.Name, true); err != nil {
			return "", err
		}
	}

	entries, err := s.archive.Contents(ctx, installable.Path)
	if err != nil {
		return "", err
	}
	if err := s.prepareDestinations(ctx, installable.Name, entries, opts.Overwrite); err != nil {
		return "", err
	}

	debName := installable.DebName
	if debName == "" {
		debName = filepath.Base(installable.Path)
	}
	retained := filepath.Join(s.PackagesDir(), debName)
	if err := os.MkdirAll(s.PackagesDir(), 0o750); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create package cache").
			WithCause(err)
	}
	if err := shared.CopyFile(installable.Path, retained); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to retain %s", debName)).
			WithCause(err)
	}
	if err := s.archive.Extract(ctx, retained, s.root); err != nil {
		if rmErr := shared.RemoveIfExists(retained); rmErr != nil {
			logger.Warn().Err(rmErr).Str("deb", retained).Msg("failed to remove retained artifact")
		}
		return "", err
	}

	s.contents.Add(retained, entries)
	s.state.InstalledPackages[installable.Name] = retained
	if err := s.manifest.Save(s.state); err != nil {
		return "", err
	}
	logger.Debug().Str("deb", retained).Int("entries", len(entries)).Msg("extracted")
	return types.InstallOutcomeInstalled, nil
}

func (s *PackageStore) Uninstall(ctx context.Context, name string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uninstallLocked(ctx, name, force)
}

func (s *PackageStore) uninstallLocked(ctx context.Context, name string, force bool) error {
	retained, ok := s.state.InstalledPackages[name]
	if !ok {
		return &types.NotInstalledError{Package: name}
	}
	logger := log.Ctx(ctx).With().Str("package", name).Logger()

	if !force {
		dependents, err := s.dependentsLocked(ctx, name)
		if err != nil {
			return err
		}
		if len(dependents) > 0 {
			return &types.DependentsError{Package: name, Dependents: dependents}
		}
	}

	entries, err := s.listContents(ctx, retained)
	if err != nil {
		return err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		rel := entries[i].RelativePath()
		if rel == "" {
			continue
		}
		if err := s.removeEntry(ctx, filepath.Join(s.root, rel)); err != nil {
			return err
		}
	}

	if err := shared.RemoveIfExists(retained); err != nil {
		logger.Warn().Err(err).Str("deb", retained).Msg("failed to remove retained artifact")
	}
	s.contents.Remove(retained)
	delete(s.state.InstalledPackages, name)
	if err := s.manifest.Save(s.state); err != nil {
		return err
	}
	logger.Info().Msg("uninstalled")
	return nil
}

func (s *PackageStore) removeEntry(ctx context.Context, path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Ctx(ctx).Warn().Str("path", path).Msg("already removed")
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
				log.Ctx(ctx).Debug().Str("path", path).Msg("directory not empty, leaving it")
				return nil
			}
			return err
		}
		return nil
	}
	return os.Remove(path)
}

// Dependents lists installed packages whose relationships name the
// system package of name.
func (s *PackageStore) Dependents(ctx context.Context, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dependentsLocked(ctx, name)
}

func (s *PackageStore) dependentsLocked(ctx context.Context, name string) ([]string, error) {
	systemName, err := s.resolver.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	execOpts := append([]ExecutorOption{WithCancelToken(s.cancelToken())}, s.execOpts...)
	exec := NewCancelableExecutor(ctx, shared.CPUCount(minDependentWorkers), execOpts...)
	defer exec.Close()

	type check struct {
		name      string
		dependent bool
	}
	var futures []*Future[check]
	for _, other := range sortedKeys(s.state.InstalledPackages) {
		if other == name {
			continue
		}
		other := other
		retained := s.state.InstalledPackages[other]
		futures = append(futures, Submit(exec, func(ctx context.Context) (check, error) {
			relationships, err := s.archive.Relationships(ctx, retained)
			if err != nil {
				return check{name: other}, err
			}
			for _, rel := range relationships {
				if containsString(rel.Names(), systemName) {
					return check{name: other, dependent: true}, nil
				}
			}
			return check{name: other}, nil
		}))
	}

	var dependents []string
	for _, f := range futures {
		out, err := f.Wait()
		if err != nil {
			return nil, err
		}
		if out.dependent {
			dependents = append(dependents, out.name)
		}
	}
	return dependents, nil
}

// FileOwners maps every sandbox path installed by a package to the
// packages that list it, sorted by package name.
func (s *PackageStore) FileOwners(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileOwnersLocked(ctx, "")
}

// OwnersOf returns the packages that installed path.
func (s *PackageStore) OwnersOf(ctx context.Context, path string) ([]string, error) {
	owners, err := s.FileOwners(ctx)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return owners[abs], nil
}

func (s *PackageStore) fileOwnersLocked(ctx context.Context, skip string) (map[string][]string, error) {
	names := sortedKeys(s.state.InstalledPackages)
	listings := make([][]types.ContentEntry, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(shared.CPUCount(minDependentWorkers))
	for i, name := range names {
		if name == skip {
			continue
		}
		i, retained := i, s.state.InstalledPackages[name]
		g.Go(func() error {
			entries, err := s.listContents(gctx, retained)
			if err != nil {
				return err
			}
			listings[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	owners := map[string][]string{}
	for i, name := range names {
		for _, entry := range listings[i] {
			if entry.Kind == types.ContentKindDir {
				continue
			}
			rel := entry.RelativePath()
			if rel == "" {
				continue
			}
			path := filepath.Join(s.root, rel)
			owners[path] = append(owners[path], name)
		}
	}
	return owners, nil
}

func (s *PackageStore) checkDependencies(ctx context.Context, installable types.Installable) error {
	relationships, err := s.archive.Relationships(ctx, installable.Path)
	if err != nil {
		return err
	}
	retained, err := s.retainedVersions()
	if err != nil {
		return err
	}

	var missing []types.Relationship
	for _, rel := range relationships {
		met, err := s.relationshipMet(ctx, rel, retained)
		if err != nil {
			return err
		}
		if !met {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		return &types.UnmetDependencyError{Package: installable.Name, Missing: missing}
	}
	return nil
}

func (s *PackageStore) relationshipMet(ctx context.Context, rel types.Relationship, retained map[string][]string) (bool, error) {
	for _, alt := range rel.Alternatives {
		for _, version := range retained[alt.Name] {
			if Matches(alt, version) {
				return true, nil
			}
		}
		version, ok, err := s.host.InstalledVersion(ctx, alt.Name)
		if err != nil {
			return false, err
		}
		if ok && Matches(alt, version) {
			return true, nil
		}
	}
	return false, nil
}

// retainedVersions maps system package names to the versions of the
// artifacts kept in the package cache.
func (s *PackageStore) retainedVersions() (map[string][]string, error) {
	versions := map[string][]string{}
	dirEntries, err := os.ReadDir(s.PackagesDir())
	if errors.Is(err, fs.ErrNotExist) {
		return versions, nil
	}
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read package cache").
			WithCause(err)
	}
	for _, entry := range dirEntries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".deb" {
			continue
		}
		info, err := ParseDebFileName(entry.Name())
		if err != nil {
			continue
		}
		versions[info.Name] = append(versions[info.Name], info.Version)
	}
	return versions, nil
}

// prepareDestinations checks every entry of the artifact against what
// currently occupies its destination and applies the resolved action.
func (s *PackageStore) prepareDestinations(ctx context.Context, name string, entries []types.ContentEntry, overwrite bool) error {
	var owners map[string][]string
	ownersFor := func(path string) ([]string, error) {
		if owners == nil {
			index, err := s.fileOwnersLocked(ctx, name)
			if err != nil {
				return nil, err
			}
			owners = index
		}
		return owners[path], nil
	}

	for _, entry := range entries {
		rel := entry.RelativePath()
		if rel == "" {
			continue
		}
		destination := filepath.Join(s.root, rel)
		state, err := s.pathState(destination, ownersFor)
		if err != nil {
			return err
		}
		action, err := policies.ResolveConflict(entry, state, destination, overwrite)
		if err != nil {
			return err
		}
		switch action {
		case policies.ActionOverwrite:
			log.Ctx(ctx).Warn().Str("path", destination).Strs("owners", state.Owners).Msg("overwriting file")
		case policies.ActionRelink:
			if err := relink(destination, state); err != nil {
				return errbuilder.New().
					WithCode(errbuilder.CodeInternal).
					WithMsg(fmt.Sprintf("failed to relink %s", destination)).
					WithCause(err)
			}
			log.Ctx(ctx).Debug().Str("path", destination).Str("target", state.Target).Msg("relinked directory")
		}
	}
	return nil
}

func (s *PackageStore) pathState(path string, ownersFor func(string) ([]string, error)) (types.PathState, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.PathState{Kind: types.PathStateAbsent}, nil
	}
	if err != nil {
		return types.PathState{}, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return types.PathState{}, err
		}
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(path), target)
		}
		targetInfo, err := os.Stat(resolved)
		if errors.Is(err, fs.ErrNotExist) {
			return types.PathState{Kind: types.PathStateAbsent}, nil
		}
		if err != nil {
			return types.PathState{}, err
		}
		if targetInfo.IsDir() {
			children, err := listChildren(resolved)
			if err != nil {
				return types.PathState{}, err
			}
			return types.PathState{Kind: types.PathStateSymlinkDir, Target: resolved, Children: children}, nil
		}
	} else if info.IsDir() {
		return types.PathState{Kind: types.PathStateDirectory}, nil
	}
	owners, err := ownersFor(path)
	if err != nil {
		return types.PathState{}, err
	}
	return types.PathState{Kind: types.PathStateOwnedFile, Owners: owners}, nil
}

func listChildren(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	children := make(map[string]string, len(entries))
	for _, entry := range entries {
		children[entry.Name()] = filepath.Join(dir, entry.Name())
	}
	return children, nil
}

// relink replaces a symlinked directory with a real directory holding
// one symlink per child of the old target.
func relink(path string, state types.PathState) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	for _, child := range sortedKeys(state.Children) {
		if err := os.Symlink(state.Children[child], filepath.Join(path, child)); err != nil {
			return err
		}
	}
	return nil
}

func (s *PackageStore) listContents(ctx context.Context, debPath string) ([]types.ContentEntry, error) {
	if entries, ok := s.contents.Get(debPath); ok {
		return entries, nil
	}
	entries, err := s.archive.Contents(ctx, debPath)
	if err != nil {
		return nil, err
	}
	s.contents.Add(debPath, entries)
	return entries, nil
}

func (s *PackageStore) cancelToken() *CancelToken {
	if s.token != nil {
		return s.token
	}
	return DefaultCancelToken()
}

func existingPath(path string) string {
	if !shared.FileExists(path) {
		return ""
	}
	return path
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var _ ports.InstallerPort = (*PackageStore)(nil)
