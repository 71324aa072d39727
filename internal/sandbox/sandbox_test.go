package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestRunScriptPassesOnSuccessSentinel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("subprocess path is unix-only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "check.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho SANDBOX_OK\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New()
	outcome, err := s.RunScript(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if !outcome.Ran || !outcome.Passed || outcome.ExitCode != 0 {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestRunScriptFailsOnNonzeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("subprocess path is unix-only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New()
	outcome, err := s.RunScript(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if outcome.Passed || outcome.ExitCode != 1 {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestRunScriptTimesOut(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("subprocess path is unix-only")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := New(WithTimeout(50 * time.Millisecond))
	outcome, err := s.RunScript(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("RunScript() error = %v", err)
	}
	if outcome.Passed {
		t.Fatalf("expected timeout to not pass: %+v", outcome)
	}
}

func TestRunGoSourcePassesOnSuccessSentinel(t *testing.T) {
	source := `package main

func Run(input string) (string, error) {
	return "SANDBOX_OK: " + input, nil
}
`
	s := New()
	outcome, err := s.RunGoSource(context.Background(), source, "hello")
	if err != nil {
		t.Fatalf("RunGoSource() error = %v", err)
	}
	if !outcome.Ran || !outcome.Passed {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestRunGoSourceFailsOnMalformedSource(t *testing.T) {
	s := New()
	outcome, err := s.RunGoSource(context.Background(), "not valid go", "hello")
	if err != nil {
		t.Fatalf("RunGoSource() error = %v", err)
	}
	if outcome.Ran {
		t.Fatalf("outcome = %+v, want Ran=false for malformed source", outcome)
	}
}
