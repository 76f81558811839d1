package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestInvoker() *Invoker {
	return &Invoker{log: zerolog.Nop(), publisher: noopPublisher{}}
}

func TestRunParsesSuccessfulResponse(t *testing.T) {
	v := newTestInvoker()
	text, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte(fixtureOK),
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if text != "hello" {
		t.Fatalf("expected %q, got %q", "hello", text)
	}
	if v.Spawns() != 1 {
		t.Fatalf("expected one spawn, got %d", v.Spawns())
	}
}

func TestRunTimeoutKillsProcessAndCleansUp(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)
	pidFile := filepath.Join(t.TempDir(), "pid")

	// The fixture records its PID, ignores TERM, and sleeps past the timeout.
	script := "#!/bin/sh\necho $$ > " + pidFile + "\ntrap '' TERM\nsleep 30\n"
	v := newTestInvoker()
	start := time.Now()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte(script),
		Timeout:     200 * time.Millisecond,
	})
	if !IsTimedOut(err) {
		t.Fatalf("expected TimedOut, got %v", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Fatalf("timeout took too long to resolve: %v", d)
	}

	raw, readErr := os.ReadFile(pidFile)
	if readErr != nil {
		t.Fatalf("read pid file: %v", readErr)
	}
	pid, _ := strconv.Atoi(strings.TrimSpace(string(raw)))
	if pid > 0 {
		if killErr := syscall.Kill(pid, 0); killErr == nil {
			t.Fatalf("process %d still alive after timeout", pid)
		}
	}

	entries, _ := os.ReadDir(tmp)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "scribed-run-") {
			t.Fatalf("temp dir %s not cleaned up", e.Name())
		}
	}
}

func TestRunClassifiesMissingDependency(t *testing.T) {
	v := newTestInvoker()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte(fixtureMissing),
		Timeout:     10 * time.Second,
	})
	if !IsDependencyMissing(err) {
		t.Fatalf("expected DependencyMissing, got %v", err)
	}
	if !strings.Contains(err.Error(), "parakeet_mlx") {
		t.Fatalf("expected module name in error, got %q", err.Error())
	}
	if hint := DependencyHint(err); hint != "pip install parakeet-mlx" {
		t.Fatalf("unexpected hint %q", hint)
	}
}

func TestRunMapsReportedFailureToOperationFailed(t *testing.T) {
	script := `#!/bin/sh
printf '{"text":"","success":false,"error":"audio file unreadable"}'
`
	v := newTestInvoker()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte(script),
		Timeout:     10 * time.Second,
	})
	if !IsOperationFailed(err) {
		t.Fatalf("expected OperationFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "audio file unreadable") {
		t.Fatalf("expected script detail in error, got %q", err.Error())
	}
}

func TestRunEmptyStdoutIsInvalidResponse(t *testing.T) {
	v := newTestInvoker()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte("#!/bin/sh\nexit 0\n"),
		Timeout:     10 * time.Second,
	})
	if !IsInvalidResponse(err) {
		t.Fatalf("expected InvalidResponse, got %v", err)
	}
}

func TestRunGarbageStdoutIsInvalidResponse(t *testing.T) {
	v := newTestInvoker()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte("#!/bin/sh\necho 'Loading model...'\n"),
		Timeout:     10 * time.Second,
	})
	if !IsInvalidResponse(err) {
		t.Fatalf("expected InvalidResponse, got %v", err)
	}
}

func TestRunNonZeroExitWithoutMarkersIsProcessFailed(t *testing.T) {
	script := "#!/bin/sh\necho 'segmentation fault' >&2\nexit 139\n"
	v := newTestInvoker()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte(script),
		Timeout:     10 * time.Second,
	})
	if !IsProcessFailed(err) {
		t.Fatalf("expected ProcessFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "segmentation fault") {
		t.Fatalf("expected stderr tail in error, got %q", err.Error())
	}
}

func TestRunMissingInterpreter(t *testing.T) {
	v := newTestInvoker()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/nonexistent/interpreter",
		ScriptBody:  []byte(fixtureOK),
	})
	if !IsInterpreterNotFound(err) {
		t.Fatalf("expected InterpreterNotFound, got %v", err)
	}
	if v.Spawns() != 0 {
		t.Fatalf("no process should spawn for a bad interpreter")
	}
}

func TestRunUnknownEmbeddedScript(t *testing.T) {
	v := newTestInvoker()
	_, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		Script:      "no-such-script.py",
	})
	if !IsScriptNotFound(err) {
		t.Fatalf("expected ScriptNotFound, got %v", err)
	}
}

func TestRunPayloadInline(t *testing.T) {
	v := newTestInvoker()
	text, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte(fixtureEcho),
		Payload:     []byte("short payload"),
		InlineLimit: 1024,
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if text != "short payload" {
		t.Fatalf("expected payload echoed inline, got %q", text)
	}
}

func TestRunPayloadSpillsToFileOverLimit(t *testing.T) {
	v := newTestInvoker()
	payload := strings.Repeat("x", 64)
	text, err := v.Run(testCtx(t), ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte(fixtureEcho),
		Payload:     []byte(payload),
		InlineLimit: 16,
		Timeout:     10 * time.Second,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if text != payload {
		t.Fatalf("expected spilled payload read back, got %q", text)
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	v := newTestInvoker()
	_, err := v.Run(ctx, ProcessRequest{
		Interpreter: "/bin/sh",
		ScriptBody:  []byte("#!/bin/sh\nsleep 30\n"),
		Timeout:     time.Minute,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRewriteShebang(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"replaces existing", "#!/usr/bin/env python3\nprint(1)\n", "#!/opt/py/bin/python3\nprint(1)\n"},
		{"inserts when absent", "print(1)\n", "#!/opt/py/bin/python3\nprint(1)\n"},
		{"shebang only", "#!/usr/bin/env python3", "#!/opt/py/bin/python3\n"},
	}
	for _, tc := range cases {
		got := string(rewriteShebang([]byte(tc.in), "/opt/py/bin/python3"))
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestClassifyStderr(t *testing.T) {
	cases := []struct {
		text     string
		wantName string
		wantOK   bool
	}{
		{"ModuleNotFoundError: No module named 'parakeet_mlx'", "parakeet_mlx", true},
		{"ImportError: No module named mlx_lm", "mlx_lm", true},
		{"parakeet-mlx is not installed", "parakeet_mlx", true},
		{"Traceback: ValueError: bad sample rate", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		name, hint, ok := ClassifyStderr(tc.text)
		if ok != tc.wantOK {
			t.Errorf("%q: ok=%v, want %v", tc.text, ok, tc.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if name != tc.wantName {
			t.Errorf("%q: name=%q, want %q", tc.text, name, tc.wantName)
		}
		if hint == "" {
			t.Errorf("%q: expected a non-empty install hint", tc.text)
		}
	}
}

func TestMergeEnvOverridesBase(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root", "LANG=C"}
	merged := mergeEnv(base, map[string]string{"HOME": "/tmp/fake", "HF_HUB_OFFLINE": "1"})
	got := map[string]string{}
	for _, kv := range merged {
		i := strings.IndexByte(kv, '=')
		got[kv[:i]] = kv[i+1:]
	}
	if got["HOME"] != "/tmp/fake" {
		t.Fatalf("expected HOME override, got %q", got["HOME"])
	}
	if got["PATH"] != "/usr/bin" || got["LANG"] != "C" {
		t.Fatalf("base entries lost: %v", got)
	}
	if got["HF_HUB_OFFLINE"] != "1" {
		t.Fatalf("expected new key appended, got %v", got)
	}
}

func TestResolveInterpreterByName(t *testing.T) {
	resolved, err := resolveInterpreter("sh")
	if err != nil {
		t.Fatalf("resolve sh: %v", err)
	}
	if !filepath.IsAbs(resolved) {
		t.Fatalf("expected absolute path, got %q", resolved)
	}
	if _, err := resolveInterpreter(""); !IsInterpreterNotFound(err) {
		t.Fatalf("expected InterpreterNotFound for empty path, got %v", err)
	}
	if _, err := resolveInterpreter("/definitely/not/here"); !IsInterpreterNotFound(err) {
		t.Fatalf("expected InterpreterNotFound for bad path, got %v", err)
	}
}
