package types

const (
	ManifestRelPath = "robenv/settings.yaml"
	PackagesRelDir  = "robenv/packages"
	LogsRelDir      = "logs"
)

// Manifest is the persisted record of installed packages.
type Manifest struct {
	InstalledPackages map[string]string `yaml:"installed_packages"`
	ROSDistro         string            `yaml:"ros_distro"`
}

func NewManifest(distro string) Manifest {
	return Manifest{
		InstalledPackages: map[string]string{},
		ROSDistro:         distro,
	}
}
