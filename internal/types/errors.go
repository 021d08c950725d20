package types

import (
	"fmt"
	"strings"
)

// CommandFailedError reports a command that exited with a non-zero status.
type CommandFailedError struct {
	Command    string
	ExitStatus int
	Output     string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command `%s` failed with exit code %d:\n%s", e.Command, e.ExitStatus, e.Output)
}

// CommandAbortedError reports a command interrupted before it finished.
type CommandAbortedError struct {
	Command string
	Output  string
}

func (e *CommandAbortedError) Error() string {
	return fmt.Sprintf("command `%s` aborted:\n%s", e.Command, e.Output)
}

// CancelledError is returned by futures that never started because their
// executor was interrupted.
type CancelledError struct{}

func (e *CancelledError) Error() string {
	return "task cancelled before it started"
}

type UnmetDependencyError struct {
	Package string
	Missing []Relationship
}

func (e *UnmetDependencyError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, rel := range e.Missing {
		parts = append(parts, rel.String())
	}
	return fmt.Sprintf("%s dependencies not found: %s", e.Package, strings.Join(parts, ", "))
}

type NotResolvableError struct {
	Name string
}

func (e *NotResolvableError) Error() string {
	return fmt.Sprintf("cannot find %s via rosdep resolve", e.Name)
}

type FileConflictError struct {
	Path   string
	Owners []string
}

func (e *FileConflictError) Error() string {
	return fmt.Sprintf("%s already installed by %v", e.Path, e.Owners)
}

type NotInstalledError struct {
	Package string
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("package %s is not installed", e.Package)
}

type DependentsError struct {
	Package    string
	Dependents []string
}

func (e *DependentsError) Error() string {
	return fmt.Sprintf("removing package %s prohibited, it is a dependency for: %v", e.Package, e.Dependents)
}

type DependencyCycleError struct {
	Cycle []string
}

func (e *DependencyCycleError) Error() string {
	return "dependency cycle in workspace: " + strings.Join(e.Cycle, " -> ")
}

// UnresolvedDependencyError is returned when a module depends on a name
// that is neither a workspace module nor a known external dependency.
type UnresolvedDependencyError struct {
	Module     string
	Dependency string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("module %s depends on %s which cannot be placed in the build order", e.Module, e.Dependency)
}

type LaunchFilesMissingError struct {
	Diagnostic MissingFilesDiagnostic
}

func (e *LaunchFilesMissingError) Error() string {
	return fmt.Sprintf("launch files of %s not installed: %s", e.Diagnostic.Package, strings.Join(e.Diagnostic.Files, ", "))
}

type UnrecognizedPackageFormatError struct {
	Path   string
	Reason string
}

func (e *UnrecognizedPackageFormatError) Error() string {
	return fmt.Sprintf("unrecognized package format in %s: %s", e.Path, e.Reason)
}

type UnknownDistroError struct {
	Name string
}

func (e *UnknownDistroError) Error() string {
	return fmt.Sprintf("unknown ros distribution: %s (known: %s)", e.Name, strings.Join(KnownDistros(), ", "))
}
