package core

import (
	"context"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/types"
)

const launchFileSuffix = ".launch"

// LaunchFileChecker compares the launch files in a module's sources with
// the launch files packaged into its artifact. Files are matched by name.
type LaunchFileChecker struct {
	Archive ports.ArchivePort
	Mode    types.LaunchFileCheck
}

func NewLaunchFileChecker(archive ports.ArchivePort, mode types.LaunchFileCheck) LaunchFileChecker {
	return LaunchFileChecker{Archive: archive, Mode: mode}
}

func (c LaunchFileChecker) Check(ctx context.Context, module types.Module, installable types.Installable) (*types.MissingFilesDiagnostic, error) {
	if c.Mode == types.LaunchFileCheckOff || c.Mode == "" {
		return nil, nil
	}
	contents, err := c.Archive.Contents(ctx, installable.Path)
	if err != nil {
		return nil, err
	}
	packaged := map[string]struct{}{}
	for _, entry := range contents {
		if strings.HasSuffix(entry.Path, launchFileSuffix) {
			packaged[path.Base(entry.Path)] = struct{}{}
		}
	}

	sources, err := findLaunchFiles(module.Path)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().
		Str("module", module.Name).
		Int("packaged", len(packaged)).
		Int("sources", len(sources)).
		Msg("checking launch files")

	var missing []string
	for _, rel := range sources {
		if _, ok := packaged[filepath.Base(rel)]; !ok {
			missing = append(missing, rel)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	diagnostic := &types.MissingFilesDiagnostic{Package: module.Name, Files: missing}
	if c.Mode == types.LaunchFileCheckWillFail {
		return diagnostic, &types.LaunchFilesMissingError{Diagnostic: *diagnostic}
	}
	return diagnostic, nil
}

func findLaunchFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), launchFileSuffix) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to scan module for launch files").
			WithCause(err)
	}
	sort.Strings(files)
	return files, nil
}

var _ ports.CheckerPort = LaunchFileChecker{}
