package ports

import "avular-robenv/internal/types"

// ManifestPort persists the sandbox manifest.
type ManifestPort interface {
	Load() (types.Manifest, error)
	Save(manifest types.Manifest) error
}
