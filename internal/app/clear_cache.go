package app

import (
	"context"

	"github.com/rs/zerolog/log"
)

// ClearCache removes the transient build directories of every workspace
// module.
func (s Service) ClearCache(ctx context.Context, req ClearCacheRequest) (ClearCacheResult, error) {
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return ClearCacheResult{}, err
	}
	modules, err := s.loadWorkspace(ctx, req.Workspace, defaultCatkinRoot(req.CatkinRoot, sb.Root), req.CatkinProfile)
	if err != nil {
		return ClearCacheResult{}, err
	}
	result := ClearCacheResult{}
	for _, module := range modules {
		if err := sb.Builder.ClearCache(module); err != nil {
			return result, err
		}
		log.Ctx(ctx).Debug().Str("module", module.Name).Msg("cleared build cache")
		result.Cleared = append(result.Cleared, module.Name)
	}
	log.Ctx(ctx).Info().Int("modules", len(result.Cleared)).Msg("cleared build caches")
	return result, nil
}
