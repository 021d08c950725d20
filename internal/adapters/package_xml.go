package adapters

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/types"
)

type PackageXMLAdapter struct {
	mu    sync.Mutex
	cache map[string]packageXMLCacheEntry
}

func NewPackageXMLAdapter() *PackageXMLAdapter {
	return &PackageXMLAdapter{cache: map[string]packageXMLCacheEntry{}}
}

type packageXML struct {
	Name    string        `xml:"name"`
	Version string        `xml:"version"`
	Export  exportSection `xml:"export"`

	Depend      []simpleDepend `xml:"depend"`
	BuildDepend []simpleDepend `xml:"build_depend"`
	ExecDepend  []simpleDepend `xml:"exec_depend"`
	// Format 1 name for exec_depend.
	RunDepend []simpleDepend `xml:"run_depend"`
}

type exportSection struct {
	Metapackage *struct{} `xml:"metapackage"`
}

type simpleDepend struct {
	Value string `xml:",chardata"`
}

type packageXMLCacheEntry struct {
	modTime time.Time
	module  types.Module
}

// ParseModule reads a package.xml into a module rooted at the file's
// directory. Results are cached until the file changes.
func (a *PackageXMLAdapter) ParseModule(path string) (types.Module, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Module{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read package.xml").
			WithCause(err)
	}
	a.mu.Lock()
	if entry, ok := a.cache[path]; ok && entry.modTime.Equal(info.ModTime()) {
		a.mu.Unlock()
		return entry.module, nil
	}
	a.mu.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return types.Module{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read package.xml").
			WithCause(err)
	}
	var pkg packageXML
	if err := xml.Unmarshal(content, &pkg); err != nil {
		return types.Module{}, &types.UnrecognizedPackageFormatError{Path: path, Reason: err.Error()}
	}
	module := types.Module{
		Name:          strings.TrimSpace(pkg.Name),
		Path:          filepath.Dir(path),
		Version:       strings.TrimSpace(pkg.Version),
		BuildDepends:  collectDepends(pkg.BuildDepend, pkg.Depend),
		ExecDepends:   collectDepends(pkg.ExecDepend, pkg.RunDepend, pkg.Depend),
		IsMetapackage: pkg.Export.Metapackage != nil,
	}
	if module.Name == "" {
		return types.Module{}, &types.UnrecognizedPackageFormatError{Path: path, Reason: "missing <name>"}
	}
	if module.Version == "" {
		return types.Module{}, &types.UnrecognizedPackageFormatError{Path: path, Reason: fmt.Sprintf("package %s has no <version>", module.Name)}
	}

	a.mu.Lock()
	a.cache[path] = packageXMLCacheEntry{modTime: info.ModTime(), module: module}
	a.mu.Unlock()
	return module, nil
}

// collectDepends flattens dependency tags in order, dropping blanks and
// repeats.
func collectDepends(groups ...[]simpleDepend) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, group := range groups {
		for _, dep := range group {
			key := strings.TrimSpace(dep.Value)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, key)
		}
	}
	return out
}

var _ ports.PackageXMLPort = (*PackageXMLAdapter)(nil)
