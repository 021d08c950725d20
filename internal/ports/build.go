package ports

import (
	"context"

	"avular-robenv/internal/types"
)

// BuilderPort turns a module's sources into a Debian package.
type BuilderPort interface {
	// Build runs the native packaging tools in the module directory and
	// leaves the artifact at makeTarget.
	Build(ctx context.Context, module types.Module, makeTarget string) error
	// ClearCache removes transient build directories. Missing
	// directories are not an error.
	ClearCache(module types.Module) error
}

// CheckerPort inspects a built artifact for files the module ships but
// the artifact lacks. A nil diagnostic means nothing is missing.
type CheckerPort interface {
	Check(ctx context.Context, module types.Module, installable types.Installable) (*types.MissingFilesDiagnostic, error)
}

// InstallerPort installs built artifacts into the sandbox.
type InstallerPort interface {
	Install(ctx context.Context, installable types.Installable, opts types.InstallOptions) (types.InstallOutcome, error)
}

// LogSinkPort stores captured command output for a failed module.
type LogSinkPort interface {
	WriteLog(module string, output string) (string, error)
}

// PackageStorePort is the sandbox view the commands work against.
type PackageStorePort interface {
	InstallerPort
	// Uninstall removes name and its files. Unless force is set it
	// refuses while other installed packages depend on it.
	Uninstall(ctx context.Context, name string, force bool) error
	InstalledPackages() []string
	ArtifactPath(name string) (string, bool)
}
