package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Child is a running spawned process whose combined stdout+stderr is
// available line-by-line, and which can be killed by feature identifier.
type Child interface {
	Lines() <-chan string
	Wait() (exitCode int, err error)
	Kill() error
}

// Spawner starts the external assistant process for one execution. Two
// implementations exist: LocalSpawner runs the child directly with its
// working directory set on the process; SSHSpawner wraps the same argv in
// a secure-shell invocation whose remote shell performs the `cd`, matching
// spec.md §4.E ("when remote, the spawn is wrapped in a secure-shell
// invocation with working directory set by the shell").
type Spawner interface {
	Spawn(ctx context.Context, argv []string, cwd string) (Child, error)
}

// RawChild is the byte-oriented counterpart to Child: StreamBrainstorm
// reads its combined output directly, in caller-chosen chunk sizes with a
// caller-set read deadline, rather than line by line (spec.md §4.E,
// "Streaming (chat variant)").
type RawChild interface {
	io.Reader
	SetReadDeadline(t time.Time) error
	Wait() (exitCode int, err error)
	Kill() error
}

// RawSpawner is implemented by LocalSpawner and SSHSpawner alongside
// Spawner, reusing the same process construction (including the SSH
// wrapping) and diverging only in how the combined stream is exposed.
type RawSpawner interface {
	SpawnRaw(ctx context.Context, argv []string, cwd string) (RawChild, error)
}

// LocalSpawner runs the child directly on this machine.
type LocalSpawner struct{}

// Spawn implements Spawner.
func (LocalSpawner) Spawn(ctx context.Context, argv []string, cwd string) (Child, error) {
	cmd, err := localCmd(ctx, argv, cwd)
	if err != nil {
		return nil, err
	}
	return startCombined(cmd)
}

// SpawnRaw implements RawSpawner.
func (LocalSpawner) SpawnRaw(ctx context.Context, argv []string, cwd string) (RawChild, error) {
	cmd, err := localCmd(ctx, argv, cwd)
	if err != nil {
		return nil, err
	}
	return startRaw(cmd)
}

func localCmd(ctx context.Context, argv []string, cwd string) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cwd
	return cmd, nil
}

// SSHSpawner wraps the child invocation in an ssh call to Host, with cwd
// entered by the remote shell via `cd`.
type SSHSpawner struct {
	Bin  string // defaults to "ssh"
	Host string
	User string
	Port int
}

// Spawn implements Spawner.
func (s SSHSpawner) Spawn(ctx context.Context, argv []string, cwd string) (Child, error) {
	return startCombined(s.cmd(ctx, argv, cwd))
}

// SpawnRaw implements RawSpawner.
func (s SSHSpawner) SpawnRaw(ctx context.Context, argv []string, cwd string) (RawChild, error) {
	return startRaw(s.cmd(ctx, argv, cwd))
}

func (s SSHSpawner) cmd(ctx context.Context, argv []string, cwd string) *exec.Cmd {
	bin := s.Bin
	if bin == "" {
		bin = "ssh"
	}
	port := s.Port
	if port == 0 {
		port = 22
	}
	target := s.Host
	if s.User != "" {
		target = s.User + "@" + s.Host
	}

	remote := shellJoin(argv)
	if cwd != "" {
		remote = "cd " + shellQuoteArg(cwd) + " && " + remote
	}

	args := []string{
		"-p", strconv.Itoa(port),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		target, remote,
	}
	return exec.CommandContext(ctx, bin, args...)
}

func shellQuoteArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuoteArg(a)
	}
	return strings.Join(quoted, " ")
}

// childProcess is the concrete Child backed by an *exec.Cmd whose stdout
// and stderr are merged into one pipe.
type childProcess struct {
	cmd    *exec.Cmd
	lines  chan string
	waitCh chan struct {
		code int
		err  error
	}
}

func startCombined(cmd *exec.Cmd) (Child, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}

	cp := &childProcess{
		cmd:   cmd,
		lines: make(chan string, 64),
		waitCh: make(chan struct {
			code int
			err  error
		}, 1),
	}

	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			cp.lines <- scanner.Text()
		}
		close(cp.lines)
	}()

	go func() {
		err := cmd.Wait()
		pw.Close()
		pr.Close()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		cp.waitCh <- struct {
			code int
			err  error
		}{code, err}
	}()

	return cp, nil
}

func (c *childProcess) Lines() <-chan string { return c.lines }

func (c *childProcess) Wait() (int, error) {
	res := <-c.waitCh
	if res.err != nil {
		if _, ok := res.err.(*exec.ExitError); ok {
			return res.code, nil
		}
		return res.code, res.err
	}
	return res.code, nil
}

func (c *childProcess) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}

// rawChildProcess is the concrete RawChild backed by an *exec.Cmd whose
// merged stdout/stderr pipe is exposed directly, without the line-scanning
// goroutine childProcess runs. The read end supports SetReadDeadline
// because os.Pipe's *os.File does, on every platform this targets.
type rawChildProcess struct {
	cmd    *exec.Cmd
	pr     *os.File
	waitCh chan rawWaitResult
}

type rawWaitResult struct {
	code int
	err  error
}

func startRaw(cmd *exec.Cmd) (RawChild, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, err
	}

	rc := &rawChildProcess{
		cmd:    cmd,
		pr:     pr,
		waitCh: make(chan rawWaitResult, 1),
	}

	go func() {
		err := cmd.Wait()
		pw.Close()
		pr.Close()
		code := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				code = exitErr.ExitCode()
			} else {
				code = -1
			}
		}
		rc.waitCh <- rawWaitResult{code, err}
	}()

	return rc, nil
}

func (c *rawChildProcess) Read(p []byte) (int, error) { return c.pr.Read(p) }

func (c *rawChildProcess) SetReadDeadline(t time.Time) error { return c.pr.SetReadDeadline(t) }

func (c *rawChildProcess) Wait() (int, error) {
	res := <-c.waitCh
	if res.err != nil {
		if _, ok := res.err.(*exec.ExitError); ok {
			return res.code, nil
		}
		return res.code, res.err
	}
	return res.code, nil
}

func (c *rawChildProcess) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}
