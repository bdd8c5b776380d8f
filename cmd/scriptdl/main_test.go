package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/script-reader-dl/internal/testutil"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

func runCLI(t *testing.T, argv ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), argv, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Help(t *testing.T) {
	code, stdout, _ := runCLI(t, "--help")
	if code != exitOK {
		t.Errorf("exit code = %d, want %d", code, exitOK)
	}
	for _, flag := range []string{"--email", "--access-code", "--session-token", "--output", "--max-pages", "--concurrency"} {
		if !strings.Contains(stdout, flag) {
			t.Errorf("help output missing %s", flag)
		}
	}
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	if code != exitOK {
		t.Errorf("exit code = %d, want %d", code, exitOK)
	}
	if !strings.Contains(stdout, version) {
		t.Errorf("version output = %q", stdout)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Setenv("SESSION_VARS", "")

	out := filepath.Join(t.TempDir(), "script.pdf")

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "missing output", argv: []string{"--session-token", "t"}, want: "SCRIPTDL_OUTPUT"},
		{name: "no credentials", argv: []string{"-o", out}, want: "--session-token"},
		{name: "email without code", argv: []string{"-o", out, "-e", "stage@example.com"}, want: "--access-code"},
		{name: "zero concurrency", argv: []string{"-o", out, "--session-token", "t", "--concurrency", "0"}, want: "--concurrency"},
		{name: "zero max pages", argv: []string{"-o", out, "--session-token", "t", "--max-pages", "0"}, want: "--max-pages"},
		{name: "bad log level", argv: []string{"-o", out, "--session-token", "t", "--log-level", "loud"}, want: "log level"},
		{name: "unknown flag", argv: []string{"-o", out, "--bogus"}, want: "bogus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.argv...)
			if code != exitUsage {
				t.Errorf("exit code = %d, want %d", code, exitUsage)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr = %q, want mention of %q", stderr, tt.want)
			}
		})
	}
}

func TestRun_Download(t *testing.T) {
	mock := testutil.NewMockReader(8)
	defer mock.Close()
	mock.SetScriptName("Little Shop")

	dir := t.TempDir()
	out := filepath.Join(dir, "script.pdf")
	metricsFile := filepath.Join(dir, "scriptdl.prom")

	code, stdout, stderr := runCLI(t,
		"--session-token", "tok-123",
		"--base-url", mock.URL(),
		"-o", out,
		"--max-pages", "3",
		"--concurrency", "2",
		"--quiet",
		"--log-level", "error",
		"--metrics-file", metricsFile,
	)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}

	if !strings.Contains(stdout, `Saved 3 pages of "Little Shop"`) {
		t.Errorf("stdout = %q", stdout)
	}
	if n, err := api.PageCountFile(out); err != nil || n != 3 {
		t.Errorf("PageCountFile = %d, %v; want 3", n, err)
	}
	if mock.GetLastToken() != "tok-123" {
		t.Errorf("token sent = %q, want tok-123", mock.GetLastToken())
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), "scriptdl_pages_fetched_total") {
		t.Error("metrics file missing scriptdl_pages_fetched_total")
	}
}

func TestRun_SessionVarsFallback(t *testing.T) {
	mock := testutil.NewMockReader(1)
	defer mock.Close()

	t.Setenv("SESSION_VARS", "from-env")

	out := filepath.Join(t.TempDir(), "script.pdf")
	code, _, stderr := runCLI(t, "--base-url", mock.URL(), "-o", out, "--quiet", "--log-level", "error")
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if mock.GetLastToken() != "from-env" {
		t.Errorf("token sent = %q, want from-env", mock.GetLastToken())
	}
}

func TestRun_PrefixedEnv(t *testing.T) {
	mock := testutil.NewMockReader(2)
	defer mock.Close()

	out := filepath.Join(t.TempDir(), "script.pdf")
	t.Setenv("SCRIPTDL_SESSION_TOKEN", "prefixed")
	t.Setenv("SCRIPTDL_OUTPUT", out)
	t.Setenv("SCRIPTDL_BASE_URL", mock.URL())
	t.Setenv("SCRIPTDL_QUIET", "true")
	t.Setenv("SCRIPTDL_LOG_LEVEL", "error")

	code, _, stderr := runCLI(t)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr:\n%s", code, stderr)
	}
	if mock.GetLastToken() != "prefixed" {
		t.Errorf("token sent = %q, want prefixed", mock.GetLastToken())
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected output file: %v", err)
	}
}

func TestRun_PartialFetchExitsNonZero(t *testing.T) {
	mock := testutil.NewMockReader(20)
	defer mock.Close()
	mock.FailPage(8, http.StatusBadGateway)

	out := filepath.Join(t.TempDir(), "script.pdf")
	code, _, stderr := runCLI(t,
		"--session-token", "t",
		"--base-url", mock.URL(),
		"-o", out,
		"--quiet",
		"--log-level", "disabled",
	)
	if code != exitError {
		t.Errorf("exit code = %d, want %d", code, exitError)
	}
	if !strings.Contains(stderr, "Error:") || !strings.Contains(stderr, "[8]") {
		t.Errorf("stderr = %q, want failed page list", stderr)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("no PDF may be written, stat err = %v", err)
	}
}
