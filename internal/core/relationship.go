package core

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// DebFileInfo is the package identity encoded in a Debian file name
// (name_version_arch.deb).
type DebFileInfo struct {
	Name         string
	Version      string
	Architecture string
}

func ParseDebFileName(path string) (DebFileInfo, error) {
	base := strings.TrimSuffix(filepath.Base(path), ".deb")
	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return DebFileInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("not a debian package file name: %s", filepath.Base(path)))
	}
	version, err := url.PathUnescape(parts[1])
	if err != nil {
		version = parts[1]
	}
	return DebFileInfo{Name: parts[0], Version: version, Architecture: parts[2]}, nil
}

// DebFileName builds the artifact name bloom produces for a package:
// <name>_<version>-0<codename>_<arch>.deb
func DebFileName(systemName string, version string, codename string, arch string) string {
	return fmt.Sprintf("%s_%s-0%s_%s.deb", systemName, version, codename, arch)
}
