package policies

import (
	"avular-robenv/internal/types"
)

type ConflictAction string

const (
	// ActionPlace writes the entry; nothing occupies the destination.
	ActionPlace ConflictAction = "place"
	// ActionOverwrite replaces a file another package installed.
	ActionOverwrite ConflictAction = "overwrite"
	// ActionRelink turns a symlinked directory into a real directory of
	// per-child symlinks before extraction.
	ActionRelink ConflictAction = "relink"
)

// ResolveConflict decides what happens to a destination path before an
// artifact entry is extracted onto it.
func ResolveConflict(entry types.ContentEntry, state types.PathState, destination string, overwrite bool) (ConflictAction, error) {
	switch state.Kind {
	case types.PathStateOwnedFile:
		if entry.Kind == types.ContentKindDir {
			return ActionPlace, nil
		}
		if overwrite {
			return ActionOverwrite, nil
		}
		return "", &types.FileConflictError{Path: destination, Owners: state.Owners}
	case types.PathStateSymlinkDir:
		if entry.Kind == types.ContentKindDir {
			return ActionRelink, nil
		}
		return ActionPlace, nil
	default:
		return ActionPlace, nil
	}
}
