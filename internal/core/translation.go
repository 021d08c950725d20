package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/types"
)

// DefaultRosdepSystem is the OS key used for rules written by robenv.
const DefaultRosdepSystem = "ubuntu"

// TranslationEditor applies edits to the sandbox rosdep table. Every
// edit loads the table, changes it and saves it back.
type TranslationEditor struct {
	Store  ports.TranslationStorePort
	System string
}

func NewTranslationEditor(store ports.TranslationStorePort) TranslationEditor {
	return TranslationEditor{Store: store, System: DefaultRosdepSystem}
}

// Add maps name to a fixed list of system packages.
func (e TranslationEditor) Add(ctx context.Context, name string, packages ...string) error {
	name = strings.TrimSpace(name)
	if name == "" || len(packages) == 0 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rosdep key and system package are required")
	}
	return e.update(ctx, func(table types.TranslationTable) error {
		e.set(table, name, types.FixedList(packages...))
		log.Ctx(ctx).Info().Str("key", name).Strs("packages", packages).Msg("added rosdep rule")
		return nil
	})
}

// AddPip maps name to a pip package. The requirement may carry PEP 440
// specifiers.
func (e TranslationEditor) AddPip(ctx context.Context, name string, requirement string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("rosdep key is required")
	}
	req, err := ParsePipRequirement(requirement)
	if err != nil {
		return err
	}
	return e.update(ctx, func(table types.TranslationTable) error {
		e.set(table, name, types.PipPackages(req.String()))
		log.Ctx(ctx).Info().Str("key", name).Str("pip", req.String()).Msg("added rosdep pip rule")
		return nil
	})
}

// Remove deletes the rule for name. A missing key is reported as not
// found.
func (e TranslationEditor) Remove(ctx context.Context, name string) error {
	return e.update(ctx, func(table types.TranslationTable) error {
		if _, ok := table[name]; !ok {
			return errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg(fmt.Sprintf("rosdep key %s not found in %s", name, e.Store.Path()))
		}
		delete(table, name)
		log.Ctx(ctx).Info().Str("key", name).Msg("removed rosdep rule")
		return nil
	})
}

// Generate adds a rule for every workspace module mapping it to its
// distro system package name. Existing rules are replaced.
func (e TranslationEditor) Generate(ctx context.Context, modules []types.Module, distro types.Distro) (int, error) {
	count := 0
	err := e.update(ctx, func(table types.TranslationTable) error {
		for _, module := range modules {
			e.set(table, module.Name, types.FixedList(distro.SystemPackageName(module.Name)))
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Ctx(ctx).Info().Int("rules", count).Str("file", e.Store.Path()).Msg("generated rosdep rules")
	return count, nil
}

func (e TranslationEditor) update(ctx context.Context, edit func(types.TranslationTable) error) error {
	table, err := e.Store.Load()
	if err != nil {
		return err
	}
	if table == nil {
		table = types.TranslationTable{}
	}
	if err := edit(table); err != nil {
		return err
	}
	if err := e.Store.Save(table); err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Str("file", e.Store.Path()).Int("keys", len(table)).Msg("saved rosdep table")
	return nil
}

func (e TranslationEditor) set(table types.TranslationTable, name string, rule types.SystemTranslation) {
	system := e.System
	if system == "" {
		system = DefaultRosdepSystem
	}
	table[name] = map[string]types.SystemTranslation{system: rule}
}
