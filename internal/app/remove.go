package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
)

func (s Service) Remove(ctx context.Context, req RemoveRequest) error {
	if len(req.Packages) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("at least one package name is required")
	}
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return err
	}
	for _, name := range req.Packages {
		if err := sb.Store.Uninstall(ctx, name, req.Force); err != nil {
			return err
		}
	}
	log.Ctx(ctx).Info().Strs("packages", req.Packages).Msg("uninstalled packages")
	return nil
}
