package app

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/core"
	"avular-robenv/internal/types"
)

const defaultDistDir = "dist"

// Install builds every module of a workspace stage by stage and installs
// the artifacts into the sandbox.
func (s Service) Install(ctx context.Context, req InstallRequest) (InstallResult, error) {
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return InstallResult{}, err
	}
	modules, err := s.loadWorkspace(ctx, req.Workspace, defaultCatkinRoot(req.CatkinRoot, sb.Root), req.CatkinProfile)
	if err != nil {
		return InstallResult{}, err
	}
	internal, external := core.Discover(modules)
	stages, err := core.BuildStages(internal, external)
	if err != nil {
		return InstallResult{}, err
	}
	distDir, err := absDir(req.DistDir, defaultDistDir)
	if err != nil {
		return InstallResult{}, err
	}

	workers := WorkerCount(req.Jobs)
	if workers != 1 {
		log.Ctx(ctx).Info().Int("jobs", workers).Msg("building with parallel jobs")
	}
	mode := req.LaunchCheck
	if mode == "" {
		mode = types.LaunchFileCheckWarn
	}
	scheduler := &core.BuildScheduler{
		Builder:         sb.Builder,
		Checker:         core.NewLaunchFileChecker(s.Archive, mode),
		Installer:       sb.Store,
		Resolver:        sb.Resolver,
		Logs:            sb.Logs,
		Codename:        s.codename(),
		Arch:            s.arch(),
		Token:           s.token(),
		ExecutorOptions: s.ExecutorOptions,
	}
	result, err := scheduler.BuildWorkspace(ctx, stages, core.BuildOptions{
		MaxWorkers: workers,
		Overwrite:  req.Overwrite,
		CanFail:    req.CanFail,
		DistDir:    distDir,
	})
	reportBuild(ctx, result)
	return InstallResult{Stages: len(stages), Result: result}, err
}

func reportBuild(ctx context.Context, result types.BuildResult) {
	for _, name := range result.FailedPackages {
		log.Ctx(ctx).Error().Str("module", name).Msg("failed package")
	}
	for _, diagnostic := range result.MissingFiles {
		log.Ctx(ctx).Error().Str("module", diagnostic.Package).Strs("files", diagnostic.Files).Msg("missing launch files")
	}
}

func absDir(dir string, fallback string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = fallback
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid directory: " + dir).
			WithCause(err)
	}
	return abs, nil
}
