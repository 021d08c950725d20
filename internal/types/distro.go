package types

import (
	"sort"
	"strings"
)

type ROSVersion int

const (
	ROS1 ROSVersion = 1
	ROS2 ROSVersion = 2
)

// DistroConfig holds the per-generation packaging details of a ROS
// distribution.
type DistroConfig struct {
	Version ROSVersion
	// MetapackagePreventOverwrite lists files under /opt/ros/<distro> that a
	// metapackage must not ship because the base installation owns them.
	MetapackagePreventOverwrite []string
	// BuilderToolVariable is the variable the generated setup scripts use
	// to locate their prefix.
	BuilderToolVariable string
}

var ros1Config = DistroConfig{
	Version: ROS1,
	MetapackagePreventOverwrite: []string{
		".catkin",
		".rosinstall",
		"_setup_util.py",
		"env.sh",
		"local_setup.bash",
		"local_setup.sh",
		"local_setup.zsh",
		"setup.bash",
		"setup.sh",
		"setup.zsh",
	},
	BuilderToolVariable: "_CATKIN_SETUP_DIR",
}

var ros2Config = DistroConfig{
	Version: ROS2,
	MetapackagePreventOverwrite: []string{
		"_local_setup_util.py",
		"local_setup.bash",
		"local_setup.sh",
		"local_setup.zsh",
		"setup.bash",
		"setup.sh",
		"setup.zsh",
	},
	BuilderToolVariable: "AMENT_CURRENT_PREFIX",
}

type distroInfo struct {
	config DistroConfig
	eol    bool
}

var distros = map[string]distroInfo{
	"melodic":  {config: ros1Config, eol: true},
	"noetic":   {config: ros1Config},
	"foxy":     {config: ros2Config, eol: true},
	"galactic": {config: ros2Config, eol: true},
	"humble":   {config: ros2Config},
	"iron":     {config: ros2Config},
	"rolling":  {config: ros2Config},
}

// Distro is a validated ROS distribution name.
type Distro string

func ParseDistro(value string) (Distro, error) {
	name := strings.TrimSpace(strings.ToLower(value))
	if _, ok := distros[name]; !ok {
		return "", &UnknownDistroError{Name: value}
	}
	return Distro(name), nil
}

func (d Distro) Config() DistroConfig {
	return distros[string(d)].config
}

// IsEOL reports whether the distribution is end of life. Unknown names
// count as end of life.
func (d Distro) IsEOL() bool {
	info, ok := distros[string(d)]
	if !ok {
		return true
	}
	return info.eol
}

// SystemPackageName maps a ROS package name to the Debian package name
// bloom generates for it.
func (d Distro) SystemPackageName(pkg string) string {
	return "ros-" + string(d) + "-" + strings.ReplaceAll(pkg, "_", "-")
}

// KnownDistros returns every supported distribution in name order.
func KnownDistros() []string {
	names := make([]string, 0, len(distros))
	for name := range distros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
