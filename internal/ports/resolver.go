package ports

import (
	"context"

	"avular-robenv/internal/types"
)

// ResolverPort maps rosdep keys to system package names.
type ResolverPort interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// TranslationStorePort loads and saves the sandbox rosdep table.
type TranslationStorePort interface {
	Load() (types.TranslationTable, error)
	Save(table types.TranslationTable) error
	Path() string
}

// RosdepUpdatePort refreshes the rosdep cache after the table changed.
type RosdepUpdatePort interface {
	Update(ctx context.Context, distro types.Distro) error
}
