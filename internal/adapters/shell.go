package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/shared"
	"avular-robenv/internal/types"
)

const (
	defaultPollInterval = time.Second
	shellWaitDelay      = 5 * time.Second
)

// ShellAdapter runs commands through bash with the sandbox's ROS
// environment sourced.
type ShellAdapter struct {
	Root   string
	Distro types.Distro
	Token  ports.CancelSignal
	// PollInterval is how often the cancel token is checked while a
	// command runs.
	PollInterval time.Duration
}

func NewShellAdapter(root string, distro types.Distro, token ports.CancelSignal) ShellAdapter {
	return ShellAdapter{Root: root, Distro: distro, Token: token, PollInterval: defaultPollInterval}
}

// SetupScript is the setup.bash of the sandbox's ROS installation.
func (a ShellAdapter) SetupScript() string {
	return filepath.Join(a.Root, "opt", "ros", string(a.Distro), "setup.bash")
}

func (a ShellAdapter) Script(command string) string {
	if a.Root == "" || a.Distro == "" || !shared.FileExists(a.SetupScript()) {
		return command
	}
	return fmt.Sprintf("source %s && %s", shellQuote(a.SetupScript()), command)
}

func (a ShellAdapter) Run(ctx context.Context, req types.CommandRequest) (string, error) {
	if strings.TrimSpace(req.Command) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("command is empty")
	}
	cmd := exec.Command("bash", "-c", a.Script(req.Command))
	cmd.Dir = req.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = shellWaitDelay

	output := &promptWriter{responses: req.Responses}
	cmd.Stdout = output
	cmd.Stderr = output
	if len(req.Responses) > 0 {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to open stdin").
				WithCause(err)
		}
		output.stdin = stdin
	}

	log.Ctx(ctx).Debug().Str("command", req.Command).Str("dir", req.Dir).Msg("running")
	if err := cmd.Start(); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to start bash").
			WithCause(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	interval := a.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			output.closeStdin()
			return a.finish(req.Command, output.String(), err)
		case <-ctx.Done():
			return a.abort(cmd, req.Command, output, done)
		case <-ticker.C:
			if a.Token != nil && a.Token.IsSet() {
				return a.abort(cmd, req.Command, output, done)
			}
		}
	}
}

func (a ShellAdapter) finish(command string, output string, err error) (string, error) {
	if err == nil {
		return output, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, &types.CommandFailedError{Command: command, ExitStatus: exitErr.ExitCode(), Output: output}
	}
	return output, &types.CommandFailedError{Command: command, ExitStatus: -1, Output: shared.CommandError([]byte(output), err).Error()}
}

// abort kills the whole process group so children such as fakeroot go
// down with bash.
func (a ShellAdapter) abort(cmd *exec.Cmd, command string, output *promptWriter, done <-chan error) (string, error) {
	if cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	<-done
	output.closeStdin()
	text := output.String()
	return text, &types.CommandAbortedError{Command: command, Output: text}
}

// promptWriter collects combined output and answers prompts: once a
// response pattern shows up in the output its reply is written to stdin.
type promptWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	responses map[string]string
	answered  map[string]bool
	stdin     io.WriteCloser
}

func (w *promptWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.buf.Write(p)
	if w.stdin == nil {
		return n, err
	}
	text := w.buf.String()
	for pattern, reply := range w.responses {
		if w.answered[pattern] || !strings.Contains(text, pattern) {
			continue
		}
		if w.answered == nil {
			w.answered = map[string]bool{}
		}
		w.answered[pattern] = true
		_, _ = io.WriteString(w.stdin, reply+"\n")
	}
	return n, err
}

func (w *promptWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (w *promptWriter) closeStdin() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stdin != nil {
		_ = w.stdin.Close()
		w.stdin = nil
	}
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

var _ ports.CommandRunnerPort = ShellAdapter{}
