package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// SSHExecTransport shells out to the system ssh binary. ResolveEngine
// picks it when an ssh binary is configured; the cmd/flowforge CLI does
// not construct it, and nothing falls back to it automatically when the
// pure-Go engine fails. Grounded on the pack's exec-based SSH
// transport (BatchMode, StrictHostKeyChecking=accept-new, ConnectTimeout).
type SSHExecTransport struct {
	Bin     string // defaults to "ssh"
	Host    string
	User    string
	Port    int
	Options Options
}

// NewSSHExecTransport constructs an exec-based transport for host/user/port.
func NewSSHExecTransport(bin, host, user string, port int, opts Options) *SSHExecTransport {
	if bin == "" {
		bin = "ssh"
	}
	if port == 0 {
		port = 22
	}
	return &SSHExecTransport{Bin: bin, Host: host, User: user, Port: port, Options: opts}
}

func (t *SSHExecTransport) target() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

func (t *SSHExecTransport) baseArgs() []string {
	return []string{
		"-p", strconv.Itoa(t.Port),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "ConnectTimeout=" + connectTimeoutFlag(t.Options.connectTimeout()),
	}
}

// Run implements Transport.
func (t *SSHExecTransport) Run(ctx context.Context, argv []string, cwd string, env map[string]string) Result {
	if len(argv) == 0 {
		return ErrorResult(errors.New("empty argv"))
	}
	remote := buildArgv(argv, cwd, env)

	args := append(t.baseArgs(), t.target(), remote)
	cmd := exec.CommandContext(ctx, t.Bin, args...)

	stdout, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return TimeoutResult(remainingOrZero(ctx))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{
				ReturnCode: exitErr.ExitCode(),
				Stdout:     string(stdout),
				Stderr:     string(exitErr.Stderr),
			}
		}
		return ErrorResult(err)
	}
	return Result{ReturnCode: 0, Stdout: string(stdout)}
}

func remainingOrZero(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return 0
}

// ReadFile implements Transport via `cat`.
func (t *SSHExecTransport) ReadFile(ctx context.Context, path string) ([]byte, error) {
	res := t.Run(ctx, []string{"cat", path}, "", nil)
	if !res.Succeeded() {
		return nil, errors.New(res.Stderr)
	}
	return []byte(res.Stdout), nil
}

// WriteFile base64-encodes the payload and decodes it remotely after
// ensuring the parent directory exists. This is the mechanism spec.md
// §4.B calls for: content that would otherwise traverse shell quoting
// twice (once locally, once on the remote shell) is encoded instead.
func (t *SSHExecTransport) WriteFile(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	encoded := base64.StdEncoding.EncodeToString(data)
	script := "mkdir -p " + shellQuote(dir) + " && echo " + shellQuote(encoded) + " | base64 -d > " + shellQuote(path)
	res := t.Run(ctx, []string{"sh", "-c", script}, "", nil)
	if !res.Succeeded() {
		return errors.New(res.Stderr)
	}
	return nil
}

// Exists implements Transport via `test -f`/`test -d`.
func (t *SSHExecTransport) Exists(ctx context.Context, path string, kind Kind) (bool, error) {
	res := t.Run(ctx, []string{"test", existsTestFlag(kind), path}, "", nil)
	if res.ReturnCode == -1 {
		return false, errors.New(res.Stderr)
	}
	return res.Succeeded(), nil
}
