package adapters

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/renameio"
	"github.com/rs/zerolog/log"

	"avular-robenv/internal/ports"
	"avular-robenv/internal/types"
)

const defaultHTTPTimeout = 60 * time.Second
const defaultHTTPRetries = 3
const defaultHTTPRetryDelay = 200 * time.Millisecond
const maxHTTPRetryDelay = 2 * time.Second

type httpRetryConfig struct {
	timeout   time.Duration
	retries   int
	baseDelay time.Duration
}

func normalizeHTTPConfig(timeoutSec int, retries int, delayMs int) httpRetryConfig {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	retryCount := retries
	if retryCount <= 0 {
		retryCount = defaultHTTPRetries
	}
	baseDelay := time.Duration(delayMs) * time.Millisecond
	if baseDelay <= 0 {
		baseDelay = defaultHTTPRetryDelay
	}
	return httpRetryConfig{
		timeout:   timeout,
		retries:   retryCount,
		baseDelay: baseDelay,
	}
}

// DebDownloadAdapter fetches artifacts for `add` from a URL or, given a
// bare package name, from the URL apt reports for it.
type DebDownloadAdapter struct {
	Runner ports.CommandRunnerPort
	http   httpRetryConfig
}

func NewDebDownloadAdapter(runner ports.CommandRunnerPort, timeoutSec int, retries int, delayMs int) DebDownloadAdapter {
	return DebDownloadAdapter{Runner: runner, http: normalizeHTTPConfig(timeoutSec, retries, delayMs)}
}

// IsRemoteRef reports whether ref names a download rather than a local
// .deb path.
func IsRemoteRef(ref string) bool {
	return strings.Contains(ref, "://") || !strings.HasSuffix(ref, ".deb")
}

func (a DebDownloadAdapter) Download(ctx context.Context, ref string, destDir string) (string, error) {
	url := ref
	if !strings.Contains(ref, "://") {
		resolved, err := a.AptURL(ctx, ref)
		if err != nil {
			return "", err
		}
		url = resolved
	}
	filename := path.Base(url)
	if filename == "" || filename == "/" || filename == "." {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg(fmt.Sprintf("cannot derive a file name from %s", url))
	}
	log.Ctx(ctx).Info().Str("file", filename).Str("url", url).Msg("downloading")

	resp, err := doRequest(ctx, url, a.http)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("download of %s returned %s", url, resp.Status))
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create download directory").
			WithCause(err)
	}
	target := filepath.Join(destDir, filename)
	file, err := renameio.TempFile(destDir, target)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create download file").
			WithCause(err)
	}
	defer file.Cleanup()
	written, err := io.Copy(file, resp.Body)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(fmt.Sprintf("failed to download %s", url)).
			WithCause(err)
	}
	if err := file.CloseAtomicallyReplace(); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to store download").
			WithCause(err)
	}
	log.Ctx(ctx).Debug().Str("path", target).Int64("bytes", written).Msg("download saved")
	return target, nil
}

// AptURL asks apt for the download URL of a package name.
func (a DebDownloadAdapter) AptURL(ctx context.Context, name string) (string, error) {
	dir, err := os.MkdirTemp("", "robenv-apt-")
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create temporary directory").
			WithCause(err)
	}
	defer os.RemoveAll(dir)

	command := "/usr/bin/apt-get download " + shellQuote(name) + " --print-uris"
	output, err := a.Runner.Run(ctx, types.CommandRequest{Command: command, Dir: dir})
	if err != nil {
		return "", err
	}
	url := parsePrintURIs(output)
	if url == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("command `%s` did not return an apt link", command))
	}
	return url, nil
}

// parsePrintURIs takes the quoted URL of the first `--print-uris` line:
// 'http://host/pool/x.deb' x.deb 1234 SHA256:...
func parsePrintURIs(output string) string {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || !strings.HasPrefix(fields[0], "'") {
			continue
		}
		return strings.Trim(fields[0], "'")
	}
	return ""
}

func doRequest(ctx context.Context, url string, cfg httpRetryConfig) (*http.Response, error) {
	client := &http.Client{Timeout: cfg.timeout}
	var lastErr error
	for attempt := 0; attempt < cfg.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, &types.CommandAbortedError{Command: "GET " + url}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to create request").
				WithCause(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &types.CommandAbortedError{Command: "GET " + url}
			}
			lastErr = err
			if attempt < cfg.retries-1 {
				time.Sleep(httpRetryDelay(attempt, cfg))
				continue
			}
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("request failed").
				WithCause(err)
		}
		if (resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests) && attempt < cfg.retries-1 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			time.Sleep(httpRetryDelay(attempt, cfg))
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("request failed")
	}
	return nil, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("request failed").
		WithCause(lastErr)
}

func httpRetryDelay(attempt int, cfg httpRetryConfig) time.Duration {
	delay := cfg.baseDelay * time.Duration(1<<attempt)
	if delay > maxHTTPRetryDelay {
		delay = maxHTTPRetryDelay
	}
	jitter := time.Duration(time.Now().UnixNano() % int64(delay/2+1))
	return delay + jitter
}

var _ ports.DownloaderPort = DebDownloadAdapter{}
