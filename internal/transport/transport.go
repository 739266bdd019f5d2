// Package transport executes commands on the workstation that owns the
// repositories, over a secure shell, and provides the file and
// source-control primitives the rest of FlowForge is built on.
package transport

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Result is the outcome of any remote invocation. It is never an error
// value by itself: transport failures are reported through ReturnCode and
// Stderr, not through the Go error return, except where noted.
type Result struct {
	ReturnCode int
	Stdout     string
	Stderr     string
}

// Succeeded reports whether the invocation exited zero.
func (r Result) Succeeded() bool { return r.ReturnCode == 0 }

// Kind distinguishes the file-test performed by Exists.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Transport is the contract every FlowForge component depends on instead
// of shelling out directly. SSHExecTransport and SSHGoTransport implement it against a remote
// workstation; LocalTransport implements it for same-machine deployments.
type Transport interface {
	// Run executes argv. If cwd and env are both empty, argv is passed
	// through verbatim; otherwise the invocation is wrapped so cwd is
	// entered and env exported before argv runs.
	Run(ctx context.Context, argv []string, cwd string, env map[string]string) Result

	// ReadFile returns the contents of path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to path, creating parent directories as needed.
	WriteFile(ctx context.Context, path string, data []byte) error

	// Exists runs a file-test for the given path and kind.
	Exists(ctx context.Context, path string, kind Kind) (bool, error)
}

// Options configures transport construction. ConnectTimeout applies to
// connection setup only; per-call timeouts are supplied by callers of Run.
type Options struct {
	// ConnectTimeout bounds how long establishing the connection may take.
	// Zero means the package default (10s).
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout matches spec.md §4.B.
const DefaultConnectTimeout = 10 * time.Second

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return o.ConnectTimeout
}

// buildArgv assembles the final command string for a Run call. Arguments
// are always shell-quoted; when cwd or env is set, the whole thing is
// wrapped in `cd ... && export ... && ...` per spec.md §4.B.
func buildArgv(argv []string, cwd string, env map[string]string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	command := strings.Join(quoted, " ")

	if cwd == "" && len(env) == 0 {
		return command
	}

	var parts []string
	if cwd != "" {
		parts = append(parts, "cd "+shellQuote(cwd))
	}
	if len(env) > 0 {
		// Deterministic order for testability.
		keys := sortedKeys(env)
		for _, k := range keys {
			parts = append(parts, "export "+k+"="+shellQuote(env[k]))
		}
	}
	parts = append(parts, command)
	return strings.Join(parts, " && ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// shellQuote wraps s in single quotes, escaping any embedded single quote.
// Any user-supplied component of a remote command must pass through this
// before concatenation; payloads that would traverse it more than once
// (see WriteFile) must be base64-encoded first instead.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func existsTestFlag(kind Kind) string {
	if kind == KindDir {
		return "-d"
	}
	return "-f"
}

// TimeoutResult builds the canonical transport-timeout failure result.
func TimeoutResult(timeout time.Duration) Result {
	return Result{
		ReturnCode: -1,
		Stderr:     "command timed out after " + timeout.String(),
	}
}

// ErrorResult builds the canonical transport-exception failure result.
func ErrorResult(err error) Result {
	return Result{ReturnCode: -1, Stderr: err.Error()}
}

func connectTimeoutFlag(d time.Duration) string {
	secs := int(d / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
