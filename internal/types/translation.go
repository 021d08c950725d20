package types

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

type TranslationKind string

const (
	TranslationNone        TranslationKind = ""
	TranslationFixedList   TranslationKind = "fixed"
	TranslationPerCodename TranslationKind = "per-codename"
	TranslationPip         TranslationKind = "pip"
)

// SystemTranslation is one rosdep rule for a single system. Exactly one
// shape is populated according to Kind:
//
//	fixed:        [pkg-a, pkg-b]
//	pip:          {pip: {packages: [name]}}
//	per-codename: {focal: <fixed|pip|null>, jammy: ...}
type SystemTranslation struct {
	Kind        TranslationKind
	Packages    []string
	PerCodename map[string]SystemTranslation
}

func FixedList(names ...string) SystemTranslation {
	return SystemTranslation{Kind: TranslationFixedList, Packages: names}
}

func PipPackages(names ...string) SystemTranslation {
	return SystemTranslation{Kind: TranslationPip, Packages: names}
}

func PerCodename(entries map[string]SystemTranslation) SystemTranslation {
	return SystemTranslation{Kind: TranslationPerCodename, PerCodename: entries}
}

// ForCodename picks the rule that applies on the given OS codename,
// falling back to the "*" entry.
func (t SystemTranslation) ForCodename(codename string) SystemTranslation {
	if t.Kind != TranslationPerCodename {
		return t
	}
	if rule, ok := t.PerCodename[codename]; ok {
		return rule
	}
	return t.PerCodename["*"]
}

type pipSection struct {
	Pip struct {
		Packages []string `yaml:"packages"`
	} `yaml:"pip"`
}

func (t *SystemTranslation) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*t = SystemTranslation{}
			return nil
		}
		return fmt.Errorf("line %d: unexpected scalar in rosdep rule", node.Line)
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*t = FixedList(names...)
		return nil
	case yaml.MappingNode:
		if len(node.Content) == 2 && node.Content[0].Value == "pip" {
			var section pipSection
			if err := node.Decode(&section); err != nil {
				return err
			}
			*t = PipPackages(section.Pip.Packages...)
			return nil
		}
		entries := map[string]SystemTranslation{}
		if err := node.Decode(&entries); err != nil {
			return err
		}
		for codename, entry := range entries {
			if entry.Kind == TranslationPerCodename {
				return fmt.Errorf("line %d: nested codename rule for %s", node.Line, codename)
			}
		}
		*t = PerCodename(entries)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported rosdep rule", node.Line)
	}
}

func (t SystemTranslation) MarshalYAML() (any, error) {
	switch t.Kind {
	case TranslationNone:
		return nil, nil
	case TranslationFixedList:
		return t.Packages, nil
	case TranslationPip:
		var section pipSection
		section.Pip.Packages = t.Packages
		return section, nil
	case TranslationPerCodename:
		return t.PerCodename, nil
	default:
		return nil, fmt.Errorf("unknown translation kind %q", t.Kind)
	}
}

// TranslationTable maps a rosdep key to its rule per system (e.g. "ubuntu").
type TranslationTable map[string]map[string]SystemTranslation

// Keys returns the rosdep keys in name order.
func (t TranslationTable) Keys() []string {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
