package ports

import "avular-robenv/internal/types"

// PackageXMLPort parses package.xml files into workspace modules.
type PackageXMLPort interface {
	// ParseModule reads the name, version, dependency tags and the
	// metapackage export of a single package.xml.
	ParseModule(path string) (types.Module, error)
}

// WorkspacePort discovers package.xml files within a workspace root.
type WorkspacePort interface {
	FindPackageXML(root string) ([]string, error)
}

// CatkinProfilePort reads the blacklist of a catkin_tools profile.
type CatkinProfilePort interface {
	Blacklist(catkinRoot string, profile string) ([]string, error)
}
