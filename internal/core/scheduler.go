package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/policies"
	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

type BuildOptions struct {
	MaxWorkers int
	Overwrite  bool
	CanFail    bool
	DistDir    string
}

// BuildScheduler builds workspace stages one at a time. The modules of a
// stage build concurrently; their artifacts are installed sequentially
// once every build of the stage has finished.
type BuildScheduler struct {
	Builder   ports.BuilderPort
	Checker   ports.CheckerPort
	Installer ports.InstallerPort
	Resolver  ports.ResolverPort
	Logs      ports.LogSinkPort
	Codename  string
	Arch      string
	Token     *CancelToken
	// ExecutorOptions are passed to the executor that spans the run.
	ExecutorOptions []ExecutorOption

	mu     sync.Mutex
	states map[string]types.ModuleState
}

type moduleBuild struct {
	module      types.Module
	result      types.BuildResult
	installable *types.Installable
}

func (s *BuildScheduler) BuildWorkspace(ctx context.Context, stages [][]types.Module, opts BuildOptions) (types.BuildResult, error) {
	result := types.BuildResult{}
	if opts.DistDir == "" {
		return result, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("dist directory is empty")
	}
	if err := os.MkdirAll(opts.DistDir, 0o750); err != nil {
		return result, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create dist directory").
			WithCause(err)
	}
	s.resetStates(stages)
	policy := policies.FailurePolicy{CanFail: opts.CanFail}

	// The executor spans builds and installs of every stage.
	execOpts := append([]ExecutorOption{WithCancelToken(s.token())}, s.ExecutorOptions...)
	exec := NewCancelableExecutor(ctx, opts.MaxWorkers, execOpts...)
	defer exec.Close()

	for i, stage := range stages {
		if s.token().IsSet() {
			return result, &types.CancelledError{}
		}
		log.Ctx(ctx).Info().Int("stage", i+1).Int("stages", len(stages)).Int("modules", len(stage)).Msg("building stage")

		built, stageResult, err := s.buildStage(ctx, exec, stage, opts, policy)
		result = result.Merge(stageResult)
		if err != nil {
			return result, err
		}
		installResult, err := s.installStage(ctx, exec, built, opts, policy)
		result = result.Merge(installResult)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// States returns a snapshot of the per-module states of the last run.
func (s *BuildScheduler) States() map[string]types.ModuleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.ModuleState, len(s.states))
	for name, state := range s.states {
		out[name] = state
	}
	return out
}

func (s *BuildScheduler) buildStage(ctx context.Context, exec *CancelableExecutor, stage []types.Module, opts BuildOptions, policy policies.FailurePolicy) ([]types.Installable, types.BuildResult, error) {
	futures := make([]*Future[moduleBuild], 0, len(stage))
	for _, module := range stage {
		module := module
		futures = append(futures, Submit(exec, func(ctx context.Context) (moduleBuild, error) {
			return s.buildModule(ctx, module, opts, policy)
		}))
	}

	result := types.BuildResult{}
	var built []types.Installable
	var firstErr error
	for f := range AsCompleted(futures) {
		out, err := f.Wait()
		result = result.Merge(out.result)
		if err != nil {
			if firstErr == nil {
				firstErr = err
				dropped := exec.CancelPending()
				log.Ctx(ctx).Debug().Int("dropped", dropped).Msg("stopping stage after failure")
			}
			continue
		}
		if out.installable != nil {
			built = append(built, *out.installable)
		}
	}
	return built, result, firstErr
}

func (s *BuildScheduler) buildModule(ctx context.Context, module types.Module, opts BuildOptions, policy policies.FailurePolicy) (moduleBuild, error) {
	out := moduleBuild{module: module}
	systemName, err := s.Resolver.Resolve(ctx, module.Name)
	if err != nil {
		return s.buildFailed(ctx, out, err, policy)
	}
	debName := DebFileName(systemName, module.Version, s.Codename, s.Arch)
	makeTarget := filepath.Join(filepath.Dir(module.Path), debName)
	buildTarget := filepath.Join(opts.DistDir, debName)

	if opts.Overwrite {
		if err := shared.RemoveIfExists(buildTarget); err != nil {
			return s.buildFailed(ctx, out, err, policy)
		}
	}
	if shared.FileExists(buildTarget) {
		s.setState(module.Name, types.ModuleStateSkippedExists)
		log.Ctx(ctx).Info().Str("module", module.Name).Str("deb", buildTarget).Msg("skipped, deb file exists")
		return out, nil
	}

	s.setState(module.Name, types.ModuleStateBuilding)
	log.Ctx(ctx).Info().Str("module", module.Name).Msg("building")
	s.clearCache(ctx, module)
	if err := s.Builder.Build(ctx, module, makeTarget); err != nil {
		return s.buildFailed(ctx, out, err, policy)
	}
	if err := shared.MoveFile(makeTarget, buildTarget); err != nil {
		return s.buildFailed(ctx, out, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to move %s to dist", debName)).
			WithCause(err), policy)
	}
	s.clearCache(ctx, module)

	installable := types.Installable{Name: module.Name, DebName: debName, Path: buildTarget}
	diagnostic, err := s.Checker.Check(ctx, module, installable)
	if diagnostic != nil {
		log.Ctx(ctx).Warn().Str("module", module.Name).Strs("missing", diagnostic.Files).Msg("launch files missing from package")
		out.result.MissingFiles = append(out.result.MissingFiles, *diagnostic)
	}
	if err != nil {
		return s.buildFailed(ctx, out, err, policy)
	}

	s.setState(module.Name, types.ModuleStateBuilt)
	out.installable = &installable
	out.result.Installables = append(out.result.Installables, installable)
	return out, nil
}

func (s *BuildScheduler) buildFailed(ctx context.Context, out moduleBuild, err error, policy policies.FailurePolicy) (moduleBuild, error) {
	s.setState(out.module.Name, types.ModuleStateBuildFailed)
	out.result.FailedPackages = append(out.result.FailedPackages, out.module.Name)
	s.writeLog(ctx, out.module.Name, err)
	log.Ctx(ctx).Error().Err(err).Str("module", out.module.Name).Msg("build failed")
	if policy.Propagate(err) {
		return out, err
	}
	return out, nil
}

// installStage runs on the caller's goroutine but under the executor's
// context, so an interrupt cancels the install in progress.
func (s *BuildScheduler) installStage(ctx context.Context, exec *CancelableExecutor, built []types.Installable, opts BuildOptions, policy policies.FailurePolicy) (types.BuildResult, error) {
	result := types.BuildResult{}
	for _, installable := range built {
		if s.token().IsSet() {
			return result, &types.CancelledError{}
		}
		s.setState(installable.Name, types.ModuleStateInstalling)
		outcome, err := s.Installer.Install(exec.Context(), installable, types.InstallOptions{
			Overwrite:         opts.Overwrite,
			CheckDependencies: false,
		})
		if err != nil && exec.Interrupted() && !policies.IsAbort(err) {
			err = &types.CommandAbortedError{
				Command: "install " + installable.DebName,
				Output:  policies.CapturedOutput(err),
			}
		}
		if err != nil {
			s.setState(installable.Name, types.ModuleStateInstallFailed)
			result.FailedPackages = append(result.FailedPackages, installable.Name)
			s.writeLog(ctx, installable.Name, err)
			log.Ctx(ctx).Error().Err(err).Str("module", installable.Name).Msg("install failed")
			if policy.Propagate(err) {
				return result, err
			}
			continue
		}
		s.setState(installable.Name, types.ModuleStateInstalled)
		log.Ctx(ctx).Info().Str("module", installable.Name).Str("outcome", string(outcome)).Msg("installed")
	}
	return result, nil
}

func (s *BuildScheduler) clearCache(ctx context.Context, module types.Module) {
	if err := s.Builder.ClearCache(module); err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("module", module.Name).Msg("failed to clear build cache")
	}
}

func (s *BuildScheduler) writeLog(ctx context.Context, module string, err error) {
	if s.Logs == nil {
		return
	}
	path, logErr := s.Logs.WriteLog(module, policies.CapturedOutput(err))
	if logErr != nil {
		log.Ctx(ctx).Warn().Err(logErr).Str("module", module).Msg("failed to write build log")
		return
	}
	log.Ctx(ctx).Info().Str("module", module).Str("log", path).Msg("wrote failure log")
}

func (s *BuildScheduler) token() *CancelToken {
	if s.Token != nil {
		return s.Token
	}
	return DefaultCancelToken()
}

func (s *BuildScheduler) resetStates(stages [][]types.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = map[string]types.ModuleState{}
	for _, stage := range stages {
		for _, module := range stage {
			s.states[module.Name] = types.ModuleStatePending
		}
	}
}

func (s *BuildScheduler) setState(module string, state types.ModuleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		s.states = map[string]types.ModuleState{}
	}
	s.states[module] = state
}
