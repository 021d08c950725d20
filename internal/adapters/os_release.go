package adapters

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	OSReleasePath      = "/etc/os-release"
	FallbackCodename   = "focal"
	codenameReleaseKey = "VERSION_CODENAME"
)

var (
	hostCodenameOnce sync.Once
	hostCodename     string
)

// HostCodename returns the distribution codename of the running system,
// read once from /etc/os-release. It falls back to focal when the file
// is unreadable or carries no codename.
func HostCodename() string {
	hostCodenameOnce.Do(func() {
		hostCodename = ReadOSCodename(OSReleasePath)
	})
	return hostCodename
}

// ReadOSCodename reads VERSION_CODENAME from an os-release file.
func ReadOSCodename(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Str("codename", FallbackCodename).Msg("os-release unreadable, using fallback codename")
		return FallbackCodename
	}
	if codename := ParseOSCodename(string(content)); codename != "" {
		return codename
	}
	return FallbackCodename
}

// ParseOSCodename extracts the unquoted VERSION_CODENAME value, or "" when
// the key is missing or empty.
func ParseOSCodename(content string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok || key != codenameReleaseKey {
			continue
		}
		return strings.Trim(strings.TrimSpace(value), `"'`)
	}
	return ""
}
