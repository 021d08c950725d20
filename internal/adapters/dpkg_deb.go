package adapters

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

// DpkgDebAdapter reads and extracts .deb artifacts with dpkg-deb.
type DpkgDebAdapter struct {
	Binary string
}

func NewDpkgDebAdapter() DpkgDebAdapter {
	return DpkgDebAdapter{Binary: "dpkg-deb"}
}

// relationshipFields are the control fields checked before installing.
var relationshipFields = []string{"Depends", "Pre-Depends"}

func (a DpkgDebAdapter) Contents(ctx context.Context, debPath string) ([]types.ContentEntry, error) {
	output, err := a.run(ctx, "--contents", debPath)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to list contents of %s", debPath)).
			WithCause(err)
	}
	entries, err := ParseContents(output)
	if err != nil {
		return nil, &types.UnrecognizedPackageFormatError{Path: debPath, Reason: err.Error()}
	}
	return entries, nil
}

func (a DpkgDebAdapter) Relationships(ctx context.Context, debPath string) ([]types.Relationship, error) {
	var out []types.Relationship
	for _, field := range relationshipFields {
		output, err := a.run(ctx, "-f", debPath, field)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg(fmt.Sprintf("failed to read %s of %s", field, debPath)).
				WithCause(err)
		}
		rels, err := ParseRelationships(strings.TrimSpace(output))
		if err != nil {
			return nil, err
		}
		out = append(out, rels...)
	}
	return out, nil
}

func (a DpkgDebAdapter) Extract(ctx context.Context, debPath string, root string) error {
	command := fmt.Sprintf("%s --extract %s %s", a.binary(), debPath, root)
	output, err := a.run(ctx, "--extract", debPath, root)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &types.CommandAbortedError{Command: command, Output: output}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &types.CommandFailedError{Command: command, ExitStatus: exitErr.ExitCode(), Output: output}
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("failed to run dpkg-deb").
		WithCause(err)
}

// ControlFields reads the named control fields of an artifact. Fields
// the artifact does not declare are left out.
func (a DpkgDebAdapter) ControlFields(ctx context.Context, debPath string, fields ...string) (map[string]string, error) {
	args := append([]string{"-f", debPath}, fields...)
	output, err := a.run(ctx, args...)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to read control fields of %s", debPath)).
			WithCause(err)
	}
	if len(fields) == 1 {
		value := strings.TrimSpace(output)
		if value == "" {
			return map[string]string{}, nil
		}
		return map[string]string{fields[0]: value}, nil
	}
	return ParseControlFields(output), nil
}

// ParseControlFields reads "Field: value" lines. Continuation lines,
// which start with a space, are appended to the previous field.
func ParseControlFields(output string) map[string]string {
	out := map[string]string{}
	var last string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if last != "" {
				out[last] += "\n" + strings.TrimSpace(line)
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		last = strings.TrimSpace(key)
		out[last] = strings.TrimSpace(value)
	}
	return out
}

func (a DpkgDebAdapter) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, a.binary(), args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Ctx(ctx).Debug().Strs("args", args).Err(err).Msg("dpkg-deb failed")
		return string(output), shared.CommandError(output, err)
	}
	return string(output), nil
}

func (a DpkgDebAdapter) binary() string {
	if a.Binary == "" {
		return "dpkg-deb"
	}
	return a.Binary
}

// contentLinePattern matches one `dpkg-deb --contents` line:
// perms owner size date time path[ -> target]
var contentLinePattern = regexp.MustCompile(`^(\S+)\s+\S+\s+\d+\s+\S+\s+\S+\s+(.+)$`)

// ParseContents turns a tar-style listing into ordered content entries.
// The archive root "./" is skipped.
func ParseContents(listing string) ([]types.ContentEntry, error) {
	var entries []types.ContentEntry
	scanner := bufio.NewScanner(strings.NewReader(listing))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		match := contentLinePattern.FindStringSubmatch(line)
		if match == nil {
			return nil, fmt.Errorf("unexpected contents line: %q", line)
		}
		perms, path := match[1], match[2]
		entry := types.ContentEntry{Kind: types.ContentKindFile}
		switch perms[0] {
		case 'd':
			entry.Kind = types.ContentKindDir
		case 'l':
			entry.Kind = types.ContentKindSymlink
			if name, target, ok := strings.Cut(path, " -> "); ok {
				path, entry.Target = name, target
			}
		case 'h':
			// Hard links read "name link to target"; the name is what
			// lands in the sandbox.
			if name, _, ok := strings.Cut(path, " link to "); ok {
				path = name
			}
		}
		entry.Path = strings.TrimSuffix(path, "/")
		if entry.Path == "." || entry.Path == "" {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// relationOps is tried in order during parsing. Two-character operators
// must precede their one-character prefixes.
var relationOps = []struct {
	token string
	op    types.RelationOp
}{
	{">=", types.RelationOpLaterEq},
	{"<=", types.RelationOpEarlierEq},
	{">>", types.RelationOpLater},
	{"<<", types.RelationOpEarlier},
	{"=", types.RelationOpEq},
	// Obsolete single-character forms mean "or equal".
	{">", types.RelationOpLaterEq},
	{"<", types.RelationOpEarlierEq},
}

// ParseRelationships parses a Debian Depends field such as
// "libc6 (>= 2.31), python3 | python3-minimal (<< 4)".
func ParseRelationships(field string) ([]types.Relationship, error) {
	var out []types.Relationship
	for _, clause := range strings.Split(field, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		var rel types.Relationship
		for _, raw := range strings.Split(clause, "|") {
			alt, err := parseAlternative(raw)
			if err != nil {
				return nil, err
			}
			rel.Alternatives = append(rel.Alternatives, alt)
		}
		out = append(out, rel)
	}
	return out, nil
}

func parseAlternative(raw string) (types.RelationshipAlternative, error) {
	value := strings.TrimSpace(raw)
	name := value
	var constraint string
	if open := strings.Index(value, "("); open >= 0 {
		end := strings.Index(value, ")")
		if end < open {
			return types.RelationshipAlternative{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg(fmt.Sprintf("invalid relationship: %s", raw))
		}
		name = value[:open]
		constraint = strings.TrimSpace(value[open+1 : end])
	}
	// Architecture "[...]" and build-profile "<...>" restrictions only
	// matter at build time.
	if cut := strings.IndexAny(name, "[<"); cut >= 0 {
		name = name[:cut]
	}
	if colon := strings.Index(name, ":"); colon >= 0 {
		name = name[:colon]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return types.RelationshipAlternative{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("empty relationship in %q", raw))
	}

	alt := types.RelationshipAlternative{Name: name}
	if constraint == "" {
		return alt, nil
	}
	for _, candidate := range relationOps {
		if !strings.HasPrefix(constraint, candidate.token) {
			continue
		}
		alt.Op = candidate.op
		alt.Version = strings.TrimSpace(strings.TrimPrefix(constraint, candidate.token))
		if alt.Version != "" {
			return alt, nil
		}
		break
	}
	return types.RelationshipAlternative{}, errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(fmt.Sprintf("invalid version constraint: %s", raw))
}

// DpkgQueryAdapter reports packages installed on the host system.
type DpkgQueryAdapter struct {
	Binary string
}

func NewDpkgQueryAdapter() DpkgQueryAdapter {
	return DpkgQueryAdapter{Binary: "dpkg-query"}
}

func (a DpkgQueryAdapter) InstalledVersion(ctx context.Context, name string) (string, bool, error) {
	binary := a.Binary
	if binary == "" {
		binary = "dpkg-query"
	}
	cmd := exec.CommandContext(ctx, binary, "-W", "-f=${db:Status-Abbrev}|${Version}", name)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || errors.Is(err, exec.ErrNotFound) {
			return "", false, nil
		}
		return "", false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to query host packages").
			WithCause(err)
	}
	return parseQueryStatus(string(output))
}

// parseQueryStatus reads "ii |1.2-3" style output; only fully
// installed packages count.
func parseQueryStatus(output string) (string, bool, error) {
	status, version, ok := strings.Cut(strings.TrimSpace(output), "|")
	if !ok || !strings.HasPrefix(status, "ii") || version == "" {
		return "", false, nil
	}
	return version, true, nil
}

var (
	_ ports.ArchivePort      = DpkgDebAdapter{}
	_ ports.HostPackagesPort = DpkgQueryAdapter{}
)
