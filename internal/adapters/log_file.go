package adapters

import (
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"avular-robenv/internal/ports"
)

// LogFileAdapter writes the captured output of failed builds and
// installs to <dir>/<module>.log.
type LogFileAdapter struct {
	Dir string
}

func NewLogFileAdapter(dir string) LogFileAdapter {
	return LogFileAdapter{Dir: dir}
}

func (a LogFileAdapter) WriteLog(module string, output string) (string, error) {
	path, err := a.ensurePath(module + ".log")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(output), 0644); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write log file").
			WithCause(err)
	}
	return path, nil
}

func (a LogFileAdapter) ensurePath(filename string) (string, error) {
	if a.Dir == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("log directory is empty")
	}
	if err := os.MkdirAll(a.Dir, 0755); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create log directory").
			WithCause(err)
	}
	return filepath.Join(a.Dir, filename), nil
}

var _ ports.LogSinkPort = LogFileAdapter{}
