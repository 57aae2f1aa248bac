package inference

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/common/fsutil"
	"lorad/internal/composite"
)

// commandRunner executes a process and returns its captured output.
type commandRunner func(ctx context.Context, env []string, bin string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, env []string, bin string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = env
	// grandchildren holding the output pipes must not outlive a kill
	cmd.WaitDelay = time.Second
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// CLIClient creates composites through the inference service's command line
// tool (`<bin> create <name> -f <Modelfile>`), which resolves ADAPTER paths on
// the client side, so the Modelfile carries the descriptor's LocalPath. Every other operation goes through the embedded HTTPClient.
type CLIClient struct {
	*HTTPClient
	bin     string
	host    string
	tempDir string
	run     commandRunner
	log     zerolog.Logger
}

var _ Client = (*CLIClient)(nil)

// NewCLIClient wraps h so CreateComposite shells out to bin. host is exported
// to the child as OLLAMA_HOST; tempDir holds the transient Modelfiles.
func NewCLIClient(h *HTTPClient, bin, host, tempDir string, log zerolog.Logger) *CLIClient {
	if bin == "" {
		bin = "ollama"
	}
	return &CLIClient{HTTPClient: h, bin: bin, host: host, tempDir: tempDir, run: execRunner, log: log}
}

// CreateComposite writes the descriptor to a temporary Modelfile, runs the
// create command bounded by the request timeout and always removes the file.
func (c *CLIClient) CreateComposite(ctx context.Context, d composite.Descriptor) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	mf, err := fsutil.WriteTemp(c.tempDir, "lorad-*.Modelfile", d.LocalModelfile())
	if err != nil {
		return err
	}
	defer func() {
		if rerr := mf.Release(); rerr != nil {
			c.log.Warn().Err(rerr).Str("path", mf.Path).Msg("failed to remove temporary Modelfile")
		}
	}()

	env := os.Environ()
	if c.host != "" {
		env = append(env, "OLLAMA_HOST="+c.host)
	}
	stdout, stderr, err := c.run(ctx, env, c.bin, "create", d.Name, "-f", mf.Path)
	if err != nil {
		switch cerr := ctx.Err(); {
		case errors.Is(cerr, context.Canceled):
			return cerr
		case errors.Is(cerr, context.DeadlineExceeded):
			// the child was killed; its exit status says nothing about the upstream
			return &UnreachableError{Op: "create", Err: errors.Join(cerr, err)}
		}
		msg := strings.TrimSpace(string(stderr))
		var ee *exec.ExitError
		if !errors.As(err, &ee) || isConnectFailure(msg) {
			// binary missing, or the CLI could not reach the server
			return &UnreachableError{Op: "create", Err: errors.Join(err, errors.New(msg))}
		}
		if msg == "" {
			msg = err.Error()
		}
		return &UpstreamError{Op: "create", Body: msg}
	}
	c.log.Debug().Str("model", d.Name).Str("stdout", strings.TrimSpace(string(stdout))).Msg("composite created via cli")
	return nil
}

func isConnectFailure(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "could not connect") || strings.Contains(s, "connection refused")
}
