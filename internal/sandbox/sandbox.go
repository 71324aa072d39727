// Package sandbox implements the Dynamic Sandbox: the second, heavier gate
// in the Immune System's pipeline. It actually executes a candidate, under
// a wall-clock deadline and an isolated working directory, and reports
// whether the run behaved.
//
// Two execution paths are grounded on two different parts of the retrieved
// pack: an in-process interpreted path for Go-source candidates, grounded
// on the teacher's sibling project's Yaegi executor, and a subprocess path
// for script candidates, grounded on the teacher's own fsskillprovider
// RunScript implementation.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/flexigpt/skillcore-go/spec"
)

const successSentinel = "SANDBOX_OK"

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithTimeout overrides the default per-run wall-clock deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Sandbox) { s.timeout = d }
}

// Sandbox runs a candidate tool in isolation and reports a spec.DynamicOutcome.
type Sandbox struct {
	timeout time.Duration
}

// New builds a Sandbox with a default 10s timeout.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunScript executes a non-Go candidate as a subprocess, copied into an
// ephemeral working directory so the run cannot touch the real skills root.
// It is the subprocess path; runArgs are passed through to the script.
func (s *Sandbox) RunScript(ctx context.Context, scriptPath string, runArgs []string) (spec.DynamicOutcome, error) {
	start := time.Now()

	workdir, err := os.MkdirTemp("", "skillcore-sandbox-*")
	if err != nil {
		return spec.DynamicOutcome{Unavailable: true}, spec.NewError(spec.KindSandboxUnavailable, "sandbox.RunScript", err)
	}
	defer os.RemoveAll(workdir)

	copied := filepath.Join(workdir, filepath.Base(scriptPath))
	if err := copyExecutable(scriptPath, copied); err != nil {
		return spec.DynamicOutcome{Unavailable: true}, spec.NewError(spec.KindSandboxUnavailable, "sandbox.RunScript", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name, cmdArgs, err := buildExecCommand(copied, runArgs)
	if err != nil {
		return spec.DynamicOutcome{Unavailable: true}, spec.NewError(spec.KindSandboxUnavailable, "sandbox.RunScript", err)
	}

	cmd := exec.CommandContext(runCtx, name, cmdArgs...)
	cmd.Dir = workdir
	cmd.Env = isolatedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	dur := time.Since(start)

	outcome := spec.DynamicOutcome{
		Ran:      true,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: dur,
	}

	if runErr == nil {
		outcome.ExitCode = 0
		outcome.Passed = strings.Contains(outcome.Stdout, successSentinel)
		return outcome, nil
	}

	var ee *exec.ExitError
	if errors.As(runErr, &ee) {
		outcome.ExitCode = ee.ExitCode()
		outcome.Passed = false
		return outcome, nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		outcome.ExitCode = -1
		outcome.Passed = false
		return outcome, nil
	}

	return spec.DynamicOutcome{Unavailable: true}, spec.NewError(spec.KindSandboxUnavailable, "sandbox.RunScript", runErr)
}

// RunGoSource interprets a Go-source candidate via Yaegi rather than
// compiling it, matching the sibling project's reasoning: `go build` can
// hang or fail on missing dependencies, where an interpreter fails fast and
// cannot escape the stdlib symbol table it is given.
//
// The candidate must define: func Run(input string) (string, error)
func (s *Sandbox) RunGoSource(ctx context.Context, source string, input string) (spec.DynamicOutcome, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return spec.DynamicOutcome{Unavailable: true}, spec.NewError(spec.KindSandboxUnavailable, "sandbox.RunGoSource", err)
	}

	if _, err := i.Eval(source); err != nil {
		return spec.DynamicOutcome{Ran: false, Duration: time.Since(start)}, nil
	}

	fn, err := i.Eval("main.Run")
	if err != nil {
		return spec.DynamicOutcome{Ran: false, Duration: time.Since(start)}, nil
	}
	run, ok := fn.Interface().(func(string) (string, error))
	if !ok {
		return spec.DynamicOutcome{Ran: false, Duration: time.Since(start)}, nil
	}

	type result struct {
		out string
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		out, err := run(input)
		resultCh <- result{out, err}
	}()

	select {
	case r := <-resultCh:
		dur := time.Since(start)
		if r.err != nil {
			return spec.DynamicOutcome{Ran: true, Passed: false, Stderr: r.err.Error(), Duration: dur}, nil
		}
		return spec.DynamicOutcome{
			Ran:      true,
			Passed:   strings.Contains(r.out, successSentinel),
			Stdout:   r.out,
			Duration: dur,
		}, nil
	case <-runCtx.Done():
		return spec.DynamicOutcome{Ran: true, Passed: false, Duration: time.Since(start)}, nil
	}
}

func copyExecutable(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o700)
}

// isolatedEnv strips the host environment down to PATH, denying the
// candidate credentials or configuration the host process holds.
func isolatedEnv() []string {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "PATH=") {
			return []string{kv}
		}
	}
	return nil
}

func buildExecCommand(scriptAbs string, args []string) (string, []string, error) {
	if runtime.GOOS == "windows" {
		return "", nil, errors.New("sandbox subprocess path is not supported on windows")
	}
	switch strings.ToLower(filepath.Ext(scriptAbs)) {
	case ".sh":
		return "sh", append([]string{scriptAbs}, args...), nil
	case ".py":
		return "python3", append([]string{scriptAbs}, args...), nil
	default:
		return scriptAbs, args, nil
	}
}
