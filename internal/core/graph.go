package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"ocm.software/open-component-model/bindings/go/dag"

	"avular-robenv/internal/types"
)

// Discover splits the dependency names of modules into the modules
// themselves and the external dependencies no module provides.
// RequiredBy keeps the order in which modules first referenced a name.
func Discover(modules []types.Module) ([]types.Module, []types.ExternalDependency) {
	internal := make(map[string]struct{}, len(modules))
	for _, module := range modules {
		internal[module.Name] = struct{}{}
	}

	index := map[string]int{}
	var external []types.ExternalDependency
	for _, module := range modules {
		for _, dep := range module.Dependencies() {
			if _, ok := internal[dep]; ok {
				continue
			}
			pos, seen := index[dep]
			if !seen {
				index[dep] = len(external)
				external = append(external, types.ExternalDependency{Name: dep, RequiredBy: []string{module.Name}})
				continue
			}
			if !containsString(external[pos].RequiredBy, module.Name) {
				external[pos].RequiredBy = append(external[pos].RequiredBy, module.Name)
			}
		}
	}
	return modules, external
}

// TopologicalOrder returns every module after its workspace build
// dependencies. Among valid orders, modules with shallower dependency
// chains come first. Cycles and dependencies that are neither modules nor
// listed in external are reported as errors; no module is dropped.
func TopologicalOrder(modules []types.Module, external []types.ExternalDependency) ([]types.Module, error) {
	byName := make(map[string]types.Module, len(modules))
	graph := dag.NewDirectedAcyclicGraph[string]()
	for _, module := range modules {
		if err := graph.AddVertex(module.Name); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("duplicate module name: %s", module.Name)).
				WithCause(err)
		}
		byName[module.Name] = module
	}
	externalNames := externalSet(external)

	for _, module := range modules {
		for _, dep := range module.BuildDepends {
			if _, ok := externalNames[dep]; ok {
				continue
			}
			if _, ok := byName[dep]; !ok {
				return nil, &types.UnresolvedDependencyError{Module: module.Name, Dependency: dep}
			}
			if err := graph.AddEdge(module.Name, dep); err != nil {
				return nil, cycleError(module.Name, dep, err)
			}
		}
	}

	names, err := graph.TopologicalSort()
	if err != nil {
		return nil, cycleError("", "", err)
	}

	depth := make(map[string]int, len(names))
	for _, name := range names {
		level := 0
		for _, dep := range byName[name].BuildDepends {
			if _, ok := byName[dep]; !ok {
				continue
			}
			if depth[dep]+1 > level {
				level = depth[dep] + 1
			}
		}
		depth[name] = level
	}
	sort.SliceStable(names, func(i, j int) bool {
		return depth[names[i]] < depth[names[j]]
	})

	order := make([]types.Module, 0, len(names))
	for _, name := range names {
		order = append(order, byName[name])
	}
	return order, nil
}

// BuildStages partitions the topological order into batches that can be
// built concurrently. A module joins the open batch when all its
// workspace build dependencies are in earlier batches; when its remaining
// dependencies sit in the open batch, that batch is closed and a new one
// starts with the module.
func BuildStages(modules []types.Module, external []types.ExternalDependency) ([][]types.Module, error) {
	order, err := TopologicalOrder(modules, external)
	if err != nil {
		return nil, err
	}
	externalNames := externalSet(external)

	var stages [][]types.Module
	var current []types.Module
	finalized := map[string]struct{}{}
	open := map[string]struct{}{}

	for _, module := range order {
		var pending []string
		for _, dep := range module.BuildDepends {
			if _, ok := externalNames[dep]; ok {
				continue
			}
			if _, ok := finalized[dep]; ok {
				continue
			}
			pending = append(pending, dep)
		}
		if len(pending) == 0 {
			current = append(current, module)
			open[module.Name] = struct{}{}
			continue
		}
		for _, dep := range pending {
			if _, ok := open[dep]; !ok {
				return nil, &types.UnresolvedDependencyError{Module: module.Name, Dependency: dep}
			}
		}
		stages = append(stages, current)
		for name := range open {
			finalized[name] = struct{}{}
		}
		current = []types.Module{module}
		open = map[string]struct{}{module.Name: {}}
	}
	if len(current) > 0 {
		stages = append(stages, current)
	}
	log.Debug().Int("modules", len(order)).Int("stages", len(stages)).Msg("computed build stages")
	return stages, nil
}

func cycleError(from string, to string, err error) error {
	var cycle *dag.CycleError
	if errors.As(err, &cycle) {
		return &types.DependencyCycleError{Cycle: cycle.Cycle}
	}
	if errors.Is(err, dag.ErrSelfReference) {
		return &types.DependencyCycleError{Cycle: []string{from, to}}
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("failed to order workspace modules").
		WithCause(err)
}

func externalSet(external []types.ExternalDependency) map[string]struct{} {
	names := make(map[string]struct{}, len(external))
	for _, dep := range external {
		names[dep.Name] = struct{}{}
	}
	return names
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
