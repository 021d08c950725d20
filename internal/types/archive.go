package types

import "strings"

// ContentEntry is one line of an artifact's content listing. Path keeps
// the archive form (for example "./opt/ros/noetic/share/foo").
type ContentEntry struct {
	Path   string
	Kind   ContentKind
	Target string
}

// RelativePath strips the archive prefix so the path can be joined
// onto the sandbox root.
func (e ContentEntry) RelativePath() string {
	trimmed := strings.TrimPrefix(e.Path, ".")
	return strings.TrimPrefix(trimmed, "/")
}

type RelationshipAlternative struct {
	Name    string
	Op      RelationOp
	Version string
}

func (a RelationshipAlternative) String() string {
	if a.Op == RelationOpNone {
		return a.Name
	}
	return a.Name + " (" + string(a.Op) + " " + a.Version + ")"
}

// Relationship is a single Depends clause. It is met when any of its
// alternatives is met.
type Relationship struct {
	Alternatives []RelationshipAlternative
}

func (r Relationship) String() string {
	parts := make([]string, 0, len(r.Alternatives))
	for _, alt := range r.Alternatives {
		parts = append(parts, alt.String())
	}
	return strings.Join(parts, " | ")
}

// Names returns the package names of every alternative.
func (r Relationship) Names() []string {
	names := make([]string, 0, len(r.Alternatives))
	for _, alt := range r.Alternatives {
		names = append(names, alt.Name)
	}
	return names
}

type InstallOptions struct {
	Overwrite         bool
	CheckDependencies bool
}

// CommandRequest describes a shell invocation. Responses maps an output
// pattern to the text written to stdin when the pattern appears.
type CommandRequest struct {
	Command   string
	Dir       string
	Responses map[string]string
}

type PathStateKind string

const (
	PathStateAbsent     PathStateKind = "absent"
	PathStateOwnedFile  PathStateKind = "owned-file"
	PathStateSymlinkDir PathStateKind = "owned-symlink-dir"
	PathStateDirectory  PathStateKind = "directory"
)

// PathState describes what currently occupies a sandbox path. Owners is
// set for owned-file, Target and Children for owned-symlink-dir.
type PathState struct {
	Kind     PathStateKind
	Owners   []string
	Target   string
	Children map[string]string
}
