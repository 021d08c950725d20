package core

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/types"
)

// VerifyFailure is a rosdep key that could not be resolved. RequiredBy
// is empty for workspace modules, which need a rule for themselves.
type VerifyFailure struct {
	Name       string
	RequiredBy []string
	Err        error
}

func (f VerifyFailure) Reason() string {
	if len(f.RequiredBy) == 0 {
		return "for itself"
	}
	return "required by " + formatList(f.RequiredBy)
}

// Verify resolves every workspace module and external dependency
// through the resolver and returns the keys that failed, sorted by name.
func Verify(ctx context.Context, resolver ports.ResolverPort, modules []types.Module, external []types.ExternalDependency, maxWorkers int, opts ...ExecutorOption) ([]VerifyFailure, error) {
	exec := NewCancelableExecutor(ctx, maxWorkers, opts...)
	defer exec.Close()

	type job struct {
		name       string
		requiredBy []string
	}
	jobs := make([]job, 0, len(modules)+len(external))
	for _, module := range modules {
		jobs = append(jobs, job{name: module.Name})
	}
	for _, dep := range external {
		jobs = append(jobs, job{name: dep.Name, requiredBy: dep.RequiredBy})
	}

	futures := make([]*Future[VerifyFailure], 0, len(jobs))
	for _, j := range jobs {
		j := j
		futures = append(futures, Submit(exec, func(ctx context.Context) (VerifyFailure, error) {
			resolved, err := resolver.Resolve(ctx, j.name)
			if err != nil {
				return VerifyFailure{Name: j.name, RequiredBy: j.requiredBy, Err: err}, nil
			}
			log.Ctx(ctx).Debug().Str("key", j.name).Str("resolved", resolved).Msg("resolved")
			return VerifyFailure{}, nil
		}))
	}

	var failures []VerifyFailure
	for f := range AsCompleted(futures) {
		failure, err := f.Wait()
		if err != nil {
			return nil, err
		}
		if failure.Name != "" {
			failures = append(failures, failure)
		}
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Name < failures[j].Name
	})
	return failures, nil
}

func formatList(values []string) string {
	out := "["
	for i, value := range values {
		if i > 0 {
			out += ", "
		}
		out += value
	}
	return out + "]"
}
