package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/adapters"
	"avular-robenv/internal/core"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

type addCandidate struct {
	name string
	path string
}

// Add installs prebuilt artifacts. Each ref is a .deb path, a URL or an
// apt package name; downloads land in the dist folder. Every installed
// package gets a rosdep rule mapping its name to itself.
func (s Service) Add(ctx context.Context, req AddRequest) (AddResult, error) {
	if len(req.Refs) == 0 {
		return AddResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("at least one deb file, url or package name is required")
	}
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return AddResult{}, err
	}
	distDir, err := absDir(req.DistDir, defaultDistDir)
	if err != nil {
		return AddResult{}, err
	}

	candidates := make([]addCandidate, 0, len(req.Refs))
	for _, ref := range req.Refs {
		path := ref
		if adapters.IsRemoteRef(ref) {
			log.Ctx(ctx).Info().Str("ref", ref).Msg("installing from download")
			path, err = sb.Downloader.Download(ctx, ref, distDir)
			if err != nil {
				return AddResult{}, err
			}
		}
		name, _, _ := strings.Cut(filepath.Base(path), "_")
		candidates = append(candidates, addCandidate{name: name, path: path})
	}

	editor := core.NewTranslationEditor(sb.Translations)
	result := AddResult{}
	for _, candidate := range candidates {
		if !shared.FileExists(candidate.path) {
			return result, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg(fmt.Sprintf("deb file %s doesn't exist", candidate.path))
		}
		abs, err := filepath.Abs(candidate.path)
		if err != nil {
			return result, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("invalid deb path").
				WithCause(err)
		}
		installable := types.Installable{Name: candidate.name, DebName: filepath.Base(abs), Path: abs}
		log.Ctx(ctx).Info().Str("package", candidate.name).Str("deb", installable.DebName).Msg("installing")
		outcome, err := sb.Store.Install(ctx, installable, types.InstallOptions{
			Overwrite:         req.Overwrite,
			CheckDependencies: !req.SkipDependencyCheck,
		})
		if err != nil {
			var failed *types.CommandFailedError
			if errors.As(err, &failed) && sb.Logs != nil {
				if path, logErr := sb.Logs.WriteLog(candidate.name, failed.Output); logErr == nil {
					log.Ctx(ctx).Info().Str("log", path).Msg("wrote failure log")
				}
			}
			return result, err
		}
		if outcome == types.InstallOutcomeSkipped {
			result.Skipped = append(result.Skipped, candidate.name)
		} else {
			result.Installed = append(result.Installed, installable)
		}
		if err := editor.Add(ctx, candidate.name, candidate.name); err != nil {
			return result, err
		}
	}
	return result, nil
}
