package app

import (
	"avular-robenv/internal/core"
	"avular-robenv/internal/types"
)

type InstallRequest struct {
	Root          string
	Workspace     string
	DistDir       string
	CatkinRoot    string
	CatkinProfile string
	Jobs          int
	Overwrite     bool
	CanFail       bool
	LaunchCheck   types.LaunchFileCheck
}

type InstallResult struct {
	Stages int
	Result types.BuildResult
}

type AddRequest struct {
	Root string
	// Refs are .deb paths, URLs or apt package names.
	Refs                []string
	DistDir             string
	Overwrite           bool
	SkipDependencyCheck bool
}

type AddResult struct {
	Installed []types.Installable
	Skipped   []string
}

type RemoveRequest struct {
	Root     string
	Packages []string
	Force    bool
}

type InfoRequest struct {
	Root string
	// Target is an installed package name or a workspace path. Empty
	// lists the installed packages.
	Target        string
	CatkinRoot    string
	CatkinProfile string
}

type PackageInfo struct {
	Name         string
	Path         string
	Package      string
	Version      string
	Architecture string
	Maintainer   string
}

type WorkspaceInfo struct {
	Path       string
	Modules    []types.Module
	BuildOrder []string
	External   []types.ExternalDependency
	Stages     [][]string
}

type InfoResult struct {
	Installed []string
	Package   *PackageInfo
	Workspace *WorkspaceInfo
}

type ClearCacheRequest struct {
	Root          string
	Workspace     string
	CatkinRoot    string
	CatkinProfile string
}

type ClearCacheResult struct {
	Cleared []string
}

type RosdepAddRequest struct {
	Root string
	Name string
	// Packages are system package names, or a single pip requirement
	// when Pip is set.
	Packages []string
	Pip      bool
	System   string
	// DryRun renders the edited table instead of saving it.
	DryRun    bool
	RunUpdate bool
}

type RosdepRemoveRequest struct {
	Root      string
	Name      string
	DryRun    bool
	RunUpdate bool
}

type RosdepEditResult struct {
	Path string
	// Rendered holds the edited table when the request was a dry run.
	Rendered string
}

type RosdepGenerateRequest struct {
	Workspace string
	// Distro names the ROS distribution. When empty it is taken from
	// the sandbox at Root.
	Distro string
	Root   string
	// Output receives the table. Empty renders it into the result.
	Output string
}

type RosdepGenerateResult struct {
	Count    int
	Path     string
	Rendered string
}

type RosdepVerifyRequest struct {
	Root      string
	Workspace string
}

type RosdepVerifyResult struct {
	Path     string
	Failures []core.VerifyFailure
}
