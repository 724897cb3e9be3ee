package main

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestRunHelpPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--help"}, &stdout, &stderr)

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if !strings.Contains(stdout.String(), "Usage:") {
		t.Fatalf("expected usage text, got %q", stdout.String())
	}
	if stderr.Len() != 0 {
		t.Fatalf("expected no stderr output, got %q", stderr.String())
	}
}

func TestRunUnknownCommandFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"bogus"}, &stdout, &stderr)

	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("expected an unknown command message, got %q", stderr.String())
	}
}

func TestRunDaemonFailsOnMalformedConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/mavrelay.toml"
	if err := os.WriteFile(path, []byte("not = [valid toml"), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := run([]string{"daemon", path}, &stdout, &stderr)

	if code == 0 {
		t.Fatalf("expected a non-zero exit code for a malformed config file, got 0")
	}
	if !strings.Contains(stderr.String(), "load config") {
		t.Fatalf("expected a load config error, got %q", stderr.String())
	}
}
