package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"avular-robenv/internal/core"
)

var infoFields = []string{"Package", "Version", "Architecture", "Maintainer"}

// Info describes the sandbox. Without a target it lists the installed
// packages; a package name shows its control fields and a directory
// shows the workspace build plan.
func (s Service) Info(ctx context.Context, req InfoRequest) (InfoResult, error) {
	sb, err := s.sandbox(ctx, req.Root)
	if err != nil {
		return InfoResult{}, err
	}
	result := InfoResult{Installed: sb.Store.InstalledPackages()}
	if req.Target == "" {
		return result, nil
	}

	if path, ok := sb.Store.ArtifactPath(req.Target); ok {
		fields, err := s.Control.ControlFields(ctx, path, infoFields...)
		if err != nil {
			return result, err
		}
		result.Package = &PackageInfo{
			Name:         req.Target,
			Path:         path,
			Package:      fields["Package"],
			Version:      fields["Version"],
			Architecture: fields["Architecture"],
			Maintainer:   fields["Maintainer"],
		}
		return result, nil
	}

	info, err := os.Stat(req.Target)
	if err != nil || !info.IsDir() {
		return result, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("%s is neither an installed package nor a workspace", req.Target))
	}
	workspace, err := s.workspaceInfo(ctx, req.Target, defaultCatkinRoot(req.CatkinRoot, sb.Root), req.CatkinProfile)
	if err != nil {
		return result, err
	}
	result.Workspace = workspace
	return result, nil
}

func (s Service) workspaceInfo(ctx context.Context, path string, catkinRoot string, profile string) (*WorkspaceInfo, error) {
	modules, err := s.loadWorkspace(ctx, path, catkinRoot, profile)
	if err != nil {
		return nil, err
	}
	internal, external := core.Discover(modules)
	order, err := core.TopologicalOrder(internal, external)
	if err != nil {
		return nil, err
	}
	stages, err := core.BuildStages(internal, external)
	if err != nil {
		return nil, err
	}
	abs, _ := filepath.Abs(path)
	info := &WorkspaceInfo{Path: abs, Modules: modules, External: external}
	for _, module := range order {
		info.BuildOrder = append(info.BuildOrder, module.Name)
	}
	for _, stage := range stages {
		names := make([]string, 0, len(stage))
		for _, module := range stage {
			names = append(names, module.Name)
		}
		info.Stages = append(info.Stages, names)
	}
	return info, nil
}
