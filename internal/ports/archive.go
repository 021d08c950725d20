package ports

import (
	"context"

	"avular-robenv/internal/types"
)

// ArchivePort inspects and unpacks Debian artifacts.
type ArchivePort interface {
	// Contents lists the artifact entries in their declared order.
	Contents(ctx context.Context, debPath string) ([]types.ContentEntry, error)
	// Relationships returns the Depends and Pre-Depends clauses.
	Relationships(ctx context.Context, debPath string) ([]types.Relationship, error)
	Extract(ctx context.Context, debPath string, root string) error
}

// HostPackagesPort answers questions about the host's own package
// database.
type HostPackagesPort interface {
	// InstalledVersion returns the installed version of name and false
	// when it is not installed.
	InstalledVersion(ctx context.Context, name string) (string, bool, error)
}

// ControlFieldsPort reads control fields of an artifact.
type ControlFieldsPort interface {
	ControlFields(ctx context.Context, debPath string, fields ...string) (map[string]string, error)
}

// DownloaderPort fetches an artifact given a URL or an apt package name
// and returns its local path.
type DownloaderPort interface {
	Download(ctx context.Context, ref string, destDir string) (string, error)
}
