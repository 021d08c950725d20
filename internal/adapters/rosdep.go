package adapters

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/renameio"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/types"
)

const (
	resolvedCacheSize = 1024
	sourcesListPrefix = "yaml file://"
	// SourcesListRelPath is where the sandbox registers its rosdep table.
	SourcesListRelPath = "etc/ros/rosdep/sources.list.d/50-robenv.list"
	defaultRosdepFile  = "robenv/rosdep.yaml"
)

// RosdepAdapter resolves rosdep keys with the rosdep CLI. Resolved names
// are memoized until the next update.
type RosdepAdapter struct {
	Runner   ports.CommandRunnerPort
	resolved *lru.Cache[string, string]
}

func NewRosdepAdapter(runner ports.CommandRunnerPort) *RosdepAdapter {
	cache, _ := lru.New[string, string](resolvedCacheSize)
	return &RosdepAdapter{Runner: runner, resolved: cache}
}

// Resolve returns the system package for name: the second line of
// `rosdep resolve` output, the first being the installer tag.
func (a *RosdepAdapter) Resolve(ctx context.Context, name string) (string, error) {
	if resolved, ok := a.resolved.Get(name); ok {
		return resolved, nil
	}
	output, err := a.Runner.Run(ctx, types.CommandRequest{Command: "rosdep resolve " + shellQuote(name)})
	if err != nil {
		var aborted *types.CommandAbortedError
		if errors.As(err, &aborted) {
			return "", err
		}
		log.Ctx(ctx).Debug().Err(err).Str("key", name).Msg("rosdep resolve failed")
		return "", &types.NotResolvableError{Name: name}
	}
	resolved, ok := parseResolveOutput(output)
	if !ok {
		return "", &types.NotResolvableError{Name: name}
	}
	a.resolved.Add(name, resolved)
	return resolved, nil
}

func parseResolveOutput(output string) (string, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	var lines []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "#") {
		return "", false
	}
	fields := strings.Fields(lines[1])
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

// Update runs `rosdep update`, including end-of-life distros when the
// sandbox uses one.
func (a *RosdepAdapter) Update(ctx context.Context, distro types.Distro) error {
	command := "rosdep update"
	if distro != "" && distro.IsEOL() {
		command += " --include-eol-distros"
	}
	if _, err := a.Runner.Run(ctx, types.CommandRequest{Command: command}); err != nil {
		return err
	}
	a.resolved.Purge()
	log.Ctx(ctx).Info().Msg("rosdep update finished")
	return nil
}

// RosdepFileAdapter reads and writes the rosdep table registered in the
// sandbox's sources list. File, when set, names the table directly.
type RosdepFileAdapter struct {
	Root string
	File string
}

func NewRosdepFileAdapter(root string) RosdepFileAdapter {
	return RosdepFileAdapter{Root: root}
}

func (a RosdepFileAdapter) SourcesListPath() string {
	return filepath.Join(a.Root, filepath.FromSlash(SourcesListRelPath))
}

// Path returns the table file named by the first line of the sources
// list, or the sandbox default when no sources list exists.
func (a RosdepFileAdapter) Path() string {
	if a.File != "" {
		return a.File
	}
	content, err := os.ReadFile(a.SourcesListPath())
	if err != nil {
		return filepath.Join(a.Root, filepath.FromSlash(defaultRosdepFile))
	}
	first, _, _ := strings.Cut(string(content), "\n")
	if path := strings.TrimSpace(strings.TrimPrefix(first, sourcesListPrefix)); path != "" {
		return path
	}
	return filepath.Join(a.Root, filepath.FromSlash(defaultRosdepFile))
}

func (a RosdepFileAdapter) Load() (types.TranslationTable, error) {
	path := a.Path()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.TranslationTable{}, nil
	}
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read rosdep table").
			WithCause(err)
	}
	table := types.TranslationTable{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("failed to parse rosdep table %s", path)).
			WithCause(err)
	}
	return table, nil
}

func (a RosdepFileAdapter) Save(table types.TranslationTable) error {
	data, err := RenderTranslationTable(table)
	if err != nil {
		return err
	}
	path := a.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create rosdep directory").
			WithCause(err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write rosdep table").
			WithCause(err)
	}
	return nil
}

// Register points the sandbox sources list at path.
func (a RosdepFileAdapter) Register(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.SourcesListPath()), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(a.SourcesListPath(), []byte(sourcesListPrefix+abs+"\n"), 0o644)
}

func RenderTranslationTable(table types.TranslationTable) ([]byte, error) {
	data, err := yaml.Marshal(table)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode rosdep table").
			WithCause(err)
	}
	return data, nil
}

var (
	_ ports.ResolverPort         = (*RosdepAdapter)(nil)
	_ ports.RosdepUpdatePort     = (*RosdepAdapter)(nil)
	_ ports.TranslationStorePort = RosdepFileAdapter{}
)
