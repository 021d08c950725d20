package types

// Module is a ROS source package found in a workspace.
type Module struct {
	Name          string
	Path          string
	Version       string
	BuildDepends  []string
	ExecDepends   []string
	IsMetapackage bool
}

// Dependencies returns the build dependencies followed by the exec
// dependencies, each name once.
func (m Module) Dependencies() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(m.BuildDepends)+len(m.ExecDepends))
	for _, group := range [][]string{m.BuildDepends, m.ExecDepends} {
		for _, name := range group {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// ExternalDependency is a dependency name no workspace module provides.
type ExternalDependency struct {
	Name       string
	RequiredBy []string
}

type Installable struct {
	Name    string
	DebName string
	Path    string
}

// MissingFilesDiagnostic lists files of a module that the built artifact
// does not contain. Paths are relative to the module root.
type MissingFilesDiagnostic struct {
	Package string
	Files   []string
}

type BuildResult struct {
	Installables   []Installable
	FailedPackages []string
	MissingFiles   []MissingFilesDiagnostic
}

// Merge returns a new result holding the entries of r followed by the
// entries of other. Neither input is modified.
func (r BuildResult) Merge(other BuildResult) BuildResult {
	return BuildResult{
		Installables:   concat(r.Installables, other.Installables),
		FailedPackages: concat(r.FailedPackages, other.FailedPackages),
		MissingFiles:   concat(r.MissingFiles, other.MissingFiles),
	}
}

// Failed reports whether any module failed to build or install.
func (r BuildResult) Failed() bool {
	return len(r.FailedPackages) > 0
}

func concat[T any](a []T, b []T) []T {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
