package app

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/adapters"
	"avular-robenv/internal/core"
	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

const (
	sandboxDirName = "robenv"
	defaultArch    = "amd64"
)

// Sandbox bundles the collaborators bound to one sandbox root.
type Sandbox struct {
	Root         string
	Distro       types.Distro
	Store        ports.PackageStorePort
	Resolver     ports.ResolverPort
	Updater      ports.RosdepUpdatePort
	Translations ports.TranslationStorePort
	Builder      ports.BuilderPort
	Logs         ports.LogSinkPort
	Downloader   ports.DownloaderPort
}

type Service struct {
	Workspace  ports.WorkspacePort
	PackageXML ports.PackageXMLPort
	Catkin     ports.CatkinProfilePort
	Archive    ports.ArchivePort
	Control    ports.ControlFieldsPort
	Host       ports.HostPackagesPort
	Token      *core.CancelToken
	// ExecutorOptions are passed to every executor the commands create.
	ExecutorOptions []core.ExecutorOption
	Codename        string
	Arch            string
	// Open replaces the default sandbox wiring.
	Open func(ctx context.Context, root string) (Sandbox, error)
}

func NewService() Service {
	archive := adapters.NewDpkgDebAdapter()
	return Service{
		Workspace:  adapters.NewWorkspaceAdapter(),
		PackageXML: adapters.NewPackageXMLAdapter(),
		Catkin:     adapters.NewCatkinProfileAdapter(),
		Archive:    archive,
		Control:    archive,
		Host:       adapters.NewDpkgQueryAdapter(),
		Token:      core.DefaultCancelToken(),
		Codename:   adapters.HostCodename(),
		Arch:       defaultArch,
	}
}

// sandbox locates and opens the sandbox for a top-level command. The
// cancel token is cleared first so an earlier interrupt does not leak
// into this command.
func (s Service) sandbox(ctx context.Context, root string) (Sandbox, error) {
	s.token().Reset()
	located, err := locateRoot(root)
	if err != nil {
		return Sandbox{}, err
	}
	if s.Open != nil {
		return s.Open(ctx, located)
	}
	return s.openSandbox(ctx, located)
}

func (s Service) openSandbox(ctx context.Context, root string) (Sandbox, error) {
	manifest := adapters.NewManifestFileAdapter(root)
	settings, err := manifest.Load()
	if err != nil {
		return Sandbox{}, err
	}
	distro, err := types.ParseDistro(settings.ROSDistro)
	if err != nil {
		return Sandbox{}, err
	}
	runner := adapters.NewShellAdapter(root, distro, s.token())
	rosdep := adapters.NewRosdepAdapter(runner)
	store, err := core.NewPackageStore(ctx, root, manifest, s.Archive, s.Host, rosdep,
		core.WithStoreCancelToken(s.token()),
		core.WithStoreExecutorOptions(s.ExecutorOptions...),
	)
	if err != nil {
		return Sandbox{}, err
	}
	log.Ctx(ctx).Debug().Str("root", root).Str("distro", string(distro)).Msg("opened robenv")
	return Sandbox{
		Root:         root,
		Distro:       distro,
		Store:        store,
		Resolver:     rosdep,
		Updater:      rosdep,
		Translations: adapters.NewRosdepFileAdapter(root),
		Builder:      adapters.NewBloomBuilderAdapter(runner, root, distro),
		Logs:         adapters.NewLogFileAdapter(filepath.Join(root, types.LogsRelDir)),
		Downloader:   adapters.NewDebDownloadAdapter(runner, 0, 0, 0),
	}, nil
}

func locateRoot(root string) (string, error) {
	if root = strings.TrimSpace(root); root != "" {
		return filepath.Abs(root)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to determine working directory").
			WithCause(err)
	}
	return adapters.LocateSandbox(cwd, sandboxDirName)
}

// loadWorkspace scans a workspace and returns its modules sorted by
// name, minus those blacklisted by the catkin profile.
func (s Service) loadWorkspace(ctx context.Context, workspace string, catkinRoot string, profile string) ([]types.Module, error) {
	workspace = strings.TrimSpace(workspace)
	if workspace == "" {
		workspace = "."
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid workspace path").
			WithCause(err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("workspace not found: " + abs).
			WithCause(err)
	}
	paths, err := s.Workspace.FindPackageXML(abs)
	if err != nil {
		return nil, err
	}
	blacklist, err := s.Catkin.Blacklist(catkinRoot, profile)
	if err != nil {
		return nil, err
	}
	skip := map[string]struct{}{}
	for _, name := range blacklist {
		skip[name] = struct{}{}
	}

	modules := make([]types.Module, 0, len(paths))
	for _, path := range paths {
		module, err := s.PackageXML.ParseModule(path)
		if err != nil {
			return nil, err
		}
		if _, ok := skip[module.Name]; ok {
			log.Ctx(ctx).Info().Str("module", module.Name).Msg("skipped, blacklisted by catkin profile")
			continue
		}
		modules = append(modules, module)
	}
	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Name < modules[j].Name
	})
	log.Ctx(ctx).Debug().Str("workspace", abs).Int("modules", len(modules)).Msg("scanned workspace")
	return modules, nil
}

// defaultCatkinRoot is the directory next to the sandbox, where a
// catkin workspace usually keeps its .catkin_tools folder.
func defaultCatkinRoot(catkinRoot string, sandboxRoot string) string {
	if strings.TrimSpace(catkinRoot) != "" {
		return catkinRoot
	}
	return filepath.Dir(sandboxRoot)
}

// WorkerCount turns the jobs option into a pool size: zero or below
// means one worker per CPU, at least two.
func WorkerCount(jobs int) int {
	if jobs <= 0 {
		return shared.CPUCount(2)
	}
	return jobs
}

func (s Service) token() *core.CancelToken {
	if s.Token != nil {
		return s.Token
	}
	return core.DefaultCancelToken()
}

func (s Service) codename() string {
	if s.Codename != "" {
		return s.Codename
	}
	return adapters.HostCodename()
}

func (s Service) arch() string {
	if s.Arch != "" {
		return s.Arch
	}
	return defaultArch
}
