package core

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/errbuilder-go"
	pep440 "github.com/aquasecurity/go-pep440-version"
	debversion "github.com/knqyf263/go-deb-version"

	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

// versionCache memoizes parsed versions. Dependency checks compare the
// same retained and host versions against many relationships.
type versionCache struct {
	mu   sync.Mutex
	deb  map[string]debversion.Version
	spec map[string]pep440.Specifiers
}

func newVersionCache() *versionCache {
	return &versionCache{
		deb:  map[string]debversion.Version{},
		spec: map[string]pep440.Specifiers{},
	}
}

// debVersion returns a parsed Debian version, caching the result.
func (c *versionCache) debVersion(value string) (debversion.Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if parsed, ok := c.deb[value]; ok {
		return parsed, nil
	}
	parsed, err := debversion.NewVersion(value)
	if err != nil {
		return debversion.Version{}, err
	}
	c.deb[value] = parsed
	return parsed, nil
}

// pepSpec returns parsed PEP 440 specifiers, caching the result.
func (c *versionCache) pepSpec(value string) (pep440.Specifiers, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if parsed, ok := c.spec[value]; ok {
		return parsed, nil
	}
	parsed, err := pep440.NewSpecifiers(value)
	if err != nil {
		return pep440.Specifiers{}, err
	}
	c.spec[value] = parsed
	return parsed, nil
}

// matches reports whether version satisfies the alternative's constraint.
// Versions that fail to parse never match.
func (c *versionCache) matches(alt types.RelationshipAlternative, version string) bool {
	if alt.Op == types.RelationOpNone {
		return true
	}
	v, err := c.debVersion(version)
	if err != nil {
		return false
	}
	want, err := c.debVersion(alt.Version)
	if err != nil {
		return false
	}
	switch alt.Op {
	case types.RelationOpEq:
		return v.Equal(want)
	case types.RelationOpLaterEq:
		return !v.LessThan(want)
	case types.RelationOpEarlierEq:
		return !v.GreaterThan(want)
	case types.RelationOpLater:
		return v.GreaterThan(want)
	case types.RelationOpEarlier:
		return v.LessThan(want)
	default:
		return false
	}
}

var sharedVersions = newVersionCache()

// Matches reports whether version satisfies the alternative's constraint.
func Matches(alt types.RelationshipAlternative, version string) bool {
	return sharedVersions.matches(alt, version)
}

var pipNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*`)

// PipRequirement is a pip package name with an optional PEP 440
// specifier set, for example "requests>=2.28,<3".
type PipRequirement struct {
	Name       string
	Specifiers string
}

func (r PipRequirement) String() string {
	return r.Name + r.Specifiers
}

// ParsePipRequirement splits a requirement into its normalized name and
// specifiers, rejecting specifiers that are not valid PEP 440.
func ParsePipRequirement(value string) (PipRequirement, error) {
	trimmed := strings.TrimSpace(value)
	name := pipNamePattern.FindString(trimmed)
	if name == "" {
		return PipRequirement{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("invalid pip requirement: %q", value))
	}
	spec := strings.ReplaceAll(strings.TrimSpace(trimmed[len(name):]), " ", "")
	if spec != "" {
		if _, err := sharedVersions.pepSpec(spec); err != nil {
			return PipRequirement{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("invalid pip version specifier in %q", value)).
				WithCause(err)
		}
	}
	return PipRequirement{Name: shared.NormalizePipName(name), Specifiers: spec}, nil
}
