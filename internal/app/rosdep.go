package app

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/adapters"
	"avular-robenv/internal/core"
	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

// minVerifyWorkers bounds the rosdep resolve fan-out from below.
const minVerifyWorkers = 4

// memoryTable is a translation store that never touches disk. Dry runs
// and generation edit it and render the result.
type memoryTable struct {
	path  string
	table types.TranslationTable
}

func (m *memoryTable) Load() (types.TranslationTable, error) {
	out := make(types.TranslationTable, len(m.table))
	for key, rules := range m.table {
		out[key] = rules
	}
	return out, nil
}

func (m *memoryTable) Save(table types.TranslationTable) error {
	m.table = table
	return nil
}

func (m *memoryTable) Path() string {
	return m.path
}

// editStore returns where an edit goes: the sandbox table, or a copy of
// it for dry runs.
func editStore(sb Sandbox, dryRun bool) (ports.TranslationStorePort, *memoryTable, error) {
	if !dryRun {
		return sb.Translations, nil, nil
	}
	table, err := sb.Translations.Load()
	if err != nil {
		return nil, nil, err
	}
	memory := &memoryTable{path: sb.Translations.Path(), table: table}
	return memory, memory, nil
}

func (s Service) RosdepAdd(ctx context.Context, req RosdepAddRequest) (RosdepEditResult, error) {
	if req.Pip && len(req.Packages) != 1 {
		return RosdepEditResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("a pip rule takes exactly one requirement")
	}
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return RosdepEditResult{}, err
	}
	store, memory, err := editStore(sb, req.DryRun)
	if err != nil {
		return RosdepEditResult{}, err
	}
	editor := core.NewTranslationEditor(store)
	if system := strings.TrimSpace(req.System); system != "" {
		editor.System = system
	}
	if req.Pip {
		err = editor.AddPip(ctx, req.Name, req.Packages[0])
	} else {
		err = editor.Add(ctx, req.Name, req.Packages...)
	}
	if err != nil {
		return RosdepEditResult{}, err
	}
	return s.finishEdit(ctx, sb, memory, req.RunUpdate)
}

func (s Service) RosdepRemove(ctx context.Context, req RosdepRemoveRequest) (RosdepEditResult, error) {
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return RosdepEditResult{}, err
	}
	store, memory, err := editStore(sb, req.DryRun)
	if err != nil {
		return RosdepEditResult{}, err
	}
	if err := core.NewTranslationEditor(store).Remove(ctx, req.Name); err != nil {
		return RosdepEditResult{}, err
	}
	return s.finishEdit(ctx, sb, memory, req.RunUpdate)
}

func (s Service) finishEdit(ctx context.Context, sb Sandbox, memory *memoryTable, runUpdate bool) (RosdepEditResult, error) {
	result := RosdepEditResult{Path: sb.Translations.Path()}
	if memory != nil {
		rendered, err := adapters.RenderTranslationTable(memory.table)
		if err != nil {
			return result, err
		}
		result.Rendered = string(rendered)
	}
	if runUpdate {
		if err := sb.Updater.Update(ctx, sb.Distro); err != nil {
			return result, err
		}
	}
	return result, nil
}

// RosdepVerify resolves every workspace module and external dependency
// and reports the keys rosdep cannot resolve.
func (s Service) RosdepVerify(ctx context.Context, req RosdepVerifyRequest) (RosdepVerifyResult, error) {
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return RosdepVerifyResult{}, err
	}
	modules, err := s.loadWorkspace(ctx, req.Workspace, "", "")
	if err != nil {
		return RosdepVerifyResult{}, err
	}
	internal, external := core.Discover(modules)
	order, err := core.TopologicalOrder(internal, external)
	if err != nil {
		return RosdepVerifyResult{}, err
	}
	opts := append([]core.ExecutorOption{core.WithCancelToken(s.token())}, s.ExecutorOptions...)
	failures, err := core.Verify(ctx, sb.Resolver, order, external, shared.CPUCount(minVerifyWorkers), opts...)
	if err != nil {
		return RosdepVerifyResult{}, err
	}
	if len(failures) == 0 {
		log.Ctx(ctx).Info().Msg("all dependencies found")
	}
	return RosdepVerifyResult{Path: sb.Translations.Path(), Failures: failures}, nil
}

// RosdepGenerate writes a table mapping each workspace module to its
// system package name. Existing content of the output is replaced.
func (s Service) RosdepGenerate(ctx context.Context, req RosdepGenerateRequest) (RosdepGenerateResult, error) {
	distro, err := s.generateDistro(ctx, req)
	if err != nil {
		return RosdepGenerateResult{}, err
	}
	modules, err := s.loadWorkspace(ctx, req.Workspace, "", "")
	if err != nil {
		return RosdepGenerateResult{}, err
	}
	memory := &memoryTable{path: req.Output, table: types.TranslationTable{}}
	count, err := core.NewTranslationEditor(memory).Generate(ctx, modules, distro)
	if err != nil {
		return RosdepGenerateResult{}, err
	}
	result := RosdepGenerateResult{Count: count}
	if output := strings.TrimSpace(req.Output); output != "" {
		if err := (adapters.RosdepFileAdapter{File: output}).Save(memory.table); err != nil {
			return result, err
		}
		result.Path = output
		return result, nil
	}
	rendered, err := adapters.RenderTranslationTable(memory.table)
	if err != nil {
		return result, err
	}
	result.Rendered = string(rendered)
	return result, nil
}

func (s Service) generateDistro(ctx context.Context, req RosdepGenerateRequest) (types.Distro, error) {
	if strings.TrimSpace(req.Distro) != "" {
		return types.ParseDistro(req.Distro)
	}
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return "", err
	}
	return sb.Distro, nil
}
