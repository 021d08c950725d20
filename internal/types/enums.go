package types

type ModuleState string

const (
	ModuleStatePending       ModuleState = "pending"
	ModuleStateBuilding      ModuleState = "building"
	ModuleStateBuilt         ModuleState = "built"
	ModuleStateBuildFailed   ModuleState = "build-failed"
	ModuleStateInstalling    ModuleState = "installing"
	ModuleStateInstalled     ModuleState = "installed"
	ModuleStateInstallFailed ModuleState = "install-failed"
	ModuleStateSkippedExists ModuleState = "skipped-exists"
)

// Terminal reports whether no further transition can follow.
func (s ModuleState) Terminal() bool {
	switch s {
	case ModuleStateInstalled, ModuleStateBuildFailed, ModuleStateInstallFailed, ModuleStateSkippedExists:
		return true
	default:
		return false
	}
}

type ContentKind string

const (
	ContentKindFile    ContentKind = "file"
	ContentKindDir     ContentKind = "dir"
	ContentKindSymlink ContentKind = "symlink"
)

type RelationOp string

const (
	RelationOpNone      RelationOp = ""
	RelationOpEarlier   RelationOp = "<<"
	RelationOpEarlierEq RelationOp = "<="
	RelationOpEq        RelationOp = "="
	RelationOpLaterEq   RelationOp = ">="
	RelationOpLater     RelationOp = ">>"
)

type InstallOutcome string

const (
	InstallOutcomeInstalled InstallOutcome = "installed"
	InstallOutcomeSkipped   InstallOutcome = "skipped"
)

type LaunchFileCheck string

const (
	LaunchFileCheckOff      LaunchFileCheck = "off"
	LaunchFileCheckWarn     LaunchFileCheck = "warn"
	LaunchFileCheckWillFail LaunchFileCheck = "fail"
)
