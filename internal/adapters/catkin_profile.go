package adapters

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"avular-robenv/internal/ports"
)

const defaultCatkinProfile = "default"

type CatkinProfileAdapter struct{}

func NewCatkinProfileAdapter() CatkinProfileAdapter {
	return CatkinProfileAdapter{}
}

type catkinProfiles struct {
	Active string `yaml:"active"`
}

type catkinConfig struct {
	Blacklist []string `yaml:"blacklist"`
	// Newer catkin_tools releases renamed the key.
	Skiplist []string `yaml:"skiplist"`
}

// Blacklist returns the packages excluded by a catkin_tools profile.
// An empty profile selects the active one. A workspace without catkin
// configuration has no blacklist.
func (a CatkinProfileAdapter) Blacklist(catkinRoot string, profile string) ([]string, error) {
	if catkinRoot == "" {
		return nil, nil
	}
	profilesDir := filepath.Join(catkinRoot, ".catkin_tools", "profiles")
	if profile == "" {
		active, err := activeProfile(profilesDir)
		if err != nil {
			return nil, err
		}
		profile = active
	}

	var config catkinConfig
	found, err := readYAML(filepath.Join(profilesDir, profile, "config.yaml"), &config)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return append(config.Blacklist, config.Skiplist...), nil
}

func activeProfile(profilesDir string) (string, error) {
	var profiles catkinProfiles
	found, err := readYAML(filepath.Join(profilesDir, "profiles.yaml"), &profiles)
	if err != nil {
		return "", err
	}
	if !found || profiles.Active == "" {
		return defaultCatkinProfile, nil
	}
	return profiles.Active, nil
}

// readYAML decodes path into out and reports whether the file exists.
func readYAML(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read " + path).
			WithCause(err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse " + path).
			WithCause(err)
	}
	return true, nil
}

var _ ports.CatkinProfilePort = CatkinProfileAdapter{}
