package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

const bloomContinuePrompt = "Continue [Y/n]?"

// buildCacheDirs are created inside a module by a debian build and are
// removed before and after each build.
var buildCacheDirs = []string{".obj-x86_64-linux-gnu", "debian"}

// BloomBuilderAdapter packages a workspace module into a .deb with
// bloom-generate and debian/rules, building against the sandbox.
type BloomBuilderAdapter struct {
	Runner ports.CommandRunnerPort
	Root   string
	Distro types.Distro
}

func NewBloomBuilderAdapter(runner ports.CommandRunnerPort, root string, distro types.Distro) BloomBuilderAdapter {
	return BloomBuilderAdapter{Runner: runner, Root: root, Distro: distro}
}

func (a BloomBuilderAdapter) Build(ctx context.Context, module types.Module, makeTarget string) error {
	if err := a.generateRules(ctx, module); err != nil {
		return err
	}
	if _, err := a.Runner.Run(ctx, types.CommandRequest{Command: "fakeroot debian/rules binary", Dir: module.Path}); err != nil {
		return err
	}
	if module.IsMetapackage {
		return a.repackMetapackage(ctx, module, makeTarget)
	}
	return nil
}

func (a BloomBuilderAdapter) ClearCache(module types.Module) error {
	for _, dir := range buildCacheDirs {
		if err := shared.RemoveIfExists(filepath.Join(module.Path, dir)); err != nil {
			return err
		}
	}
	return nil
}

func (a BloomBuilderAdapter) generateRules(ctx context.Context, module types.Module) error {
	_, err := a.Runner.Run(ctx, types.CommandRequest{
		Command:   fmt.Sprintf("bloom-generate rosdebian --ros-distro %s .", a.Distro),
		Dir:       module.Path,
		Responses: map[string]string{bloomContinuePrompt: "n"},
	})
	if err != nil {
		return err
	}
	rulesPath := filepath.Join(module.Path, "debian", "rules")
	content, err := os.ReadFile(rulesPath)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("bloom did not generate debian/rules").
			WithCause(err)
	}
	info, err := os.Stat(rulesPath)
	if err != nil {
		return err
	}
	rewritten := RewriteRules(string(content), a.Root, a.Distro)
	if err := os.WriteFile(rulesPath, []byte(rewritten), info.Mode().Perm()); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to rewrite debian/rules").
			WithCause(err)
	}
	log.Ctx(ctx).Debug().Str("module", module.Name).Msg("generated debian/rules")
	return nil
}

// RewriteRules points the build environment of generated rules at the
// sandbox while the install prefix stays /opt/ros/<distro>.
func RewriteRules(rules string, root string, distro types.Distro) string {
	base := "/opt/ros/" + string(distro)
	sandbox := filepath.Join(root, "opt", "ros", string(distro))
	return strings.NewReplacer(
		"PKG_CONFIG_PATH="+base+"/lib/pkgconfig", "PKG_CONFIG_PATH="+sandbox+"/lib/pkgconfig",
		`CMAKE_PREFIX_PATH="`+base+`"`, `CMAKE_PREFIX_PATH="`+sandbox+`"`,
		base+"/setup.sh", sandbox+"/setup.sh",
	).Replace(rules)
}

// repackMetapackage drops the setup files the base installation owns
// from the staged tree and rebuilds the archive at makeTarget.
func (a BloomBuilderAdapter) repackMetapackage(ctx context.Context, module types.Module, makeTarget string) error {
	stageDir := filepath.Join(module.Path, "debian", a.Distro.SystemPackageName(module.Name))
	rosDir := filepath.Join(stageDir, "opt", "ros", string(a.Distro))
	for _, name := range a.Distro.Config().MetapackagePreventOverwrite {
		if err := shared.RemoveIfExists(filepath.Join(rosDir, name)); err != nil {
			return err
		}
	}
	_, err := a.Runner.Run(ctx, types.CommandRequest{
		Command: fmt.Sprintf("dpkg-deb --build --root-owner-group %s", shellQuote(stageDir)),
		Dir:     module.Path,
	})
	if err != nil {
		return err
	}
	if err := shared.RemoveIfExists(makeTarget); err != nil {
		return err
	}
	if err := shared.MoveFile(stageDir+".deb", makeTarget); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to move metapackage archive").
			WithCause(err)
	}
	log.Ctx(ctx).Debug().Str("module", module.Name).Str("deb", makeTarget).Msg("repacked metapackage")
	return nil
}

var _ ports.BuilderPort = BloomBuilderAdapter{}
