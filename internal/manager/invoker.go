package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"scribed/internal/common/fsutil"
)

// ProcessRequest describes one external interpreter invocation.
type ProcessRequest struct {
	// Interpreter is a path or bare command name (resolved via PATH).
	Interpreter string
	// Script names an embedded script (scripts.go). ScriptBody overrides it
	// when set, which tests use to run shell fixtures.
	Script     string
	ScriptBody []byte
	// Args are appended after the script path:
	// [scriptPath, ...Args, payloadArg?].
	Args []string
	// Payload is passed inline as the final argument when small, or spilled
	// to a temp file (passed as "@<path>") when it exceeds InlineLimit.
	// Command lines have length limits; large payloads must not ride argv.
	Payload     []byte
	InlineLimit int
	Timeout     time.Duration
	// Env is merged over the daemon environment ("KEY=VALUE" per entry).
	Env map[string]string
}

// scriptResponse is the single JSON object every script writes to stdout.
// Diagnostic text goes to stderr and never interferes with parsing.
type scriptResponse struct {
	Text    string  `json:"text"`
	Success bool    `json:"success"`
	Error   *string `json:"error"`
}

// Invoker executes one external interpreter process per request and returns
// a single, bounded, well-typed outcome. It never retries.
type Invoker struct {
	log       zerolog.Logger
	publisher EventPublisher

	// lookupScript resolves embedded script names; tests swap in shell
	// fixtures. Nil means the embedded set.
	lookupScript func(name string) ([]byte, error)

	spawnsTotal uint64
}

// Spawns reports how many processes this invoker has started.
func (v *Invoker) Spawns() uint64 { return atomic.LoadUint64(&v.spawnsTotal) }

const stderrTailLimit = 4096

// Run spawns the interpreter on a materialized copy of the script and waits
// for exactly one of: natural exit, timeout, or context cancellation. Every
// temporary file created for the call is deleted on all exit paths.
func (v *Invoker) Run(ctx context.Context, req ProcessRequest) (string, error) {
	interpreter, err := resolveInterpreter(req.Interpreter)
	if err != nil {
		return "", err
	}
	body := req.ScriptBody
	if body == nil {
		lookup := v.lookupScript
		if lookup == nil {
			lookup = Script
		}
		b, err := lookup(req.Script)
		if err != nil {
			return "", err
		}
		body = b
	}

	dir, err := os.MkdirTemp("", "scribed-run-")
	if err != nil {
		return "", ErrProcessFailed("temp dir: " + err.Error())
	}
	defer os.RemoveAll(dir)

	scriptName := req.Script
	if scriptName == "" {
		scriptName = "script"
	}
	scriptPath := filepath.Join(dir, scriptName)
	if err := os.WriteFile(scriptPath, rewriteShebang(body, interpreter), 0o700); err != nil {
		return "", ErrProcessFailed("write script: " + err.Error())
	}

	args := append([]string{scriptPath}, req.Args...)
	if len(req.Payload) > 0 {
		limit := req.InlineLimit
		if limit <= 0 {
			limit = defaultPayloadInlineLimit
		}
		if len(req.Payload) > limit {
			payloadPath := filepath.Join(dir, "payload")
			if err := os.WriteFile(payloadPath, req.Payload, 0o600); err != nil {
				return "", ErrProcessFailed("write payload: " + err.Error())
			}
			args = append(args, "@"+payloadPath)
		} else {
			args = append(args, string(req.Payload))
		}
	}

	cmd := exec.Command(interpreter, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = mergeEnv(os.Environ(), req.Env)
	// Own process group, so termination reaches children the interpreter
	// spawned. Without this an orphaned grandchild keeps the stdout pipe
	// open and Wait never returns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		return "", ErrProcessFailed("spawn: " + err.Error())
	}
	atomic.AddUint64(&v.spawnsTotal, 1)
	v.log.Debug().Str("interpreter", interpreter).Str("script", scriptName).Int("pid", cmd.Process.Pid).Msg("process started")

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTranscribeTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Single-resolution race: exactly one select arm decides the outcome.
	// The losing signal is drained after the process is terminated.
	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-timer.C:
		v.terminate(cmd, waitCh)
		v.publisher.Publish(Event{Name: "process_timeout", Fields: map[string]any{"pid": cmd.Process.Pid, "script": scriptName}})
		return "", ErrTimedOut(timeout)
	case <-ctx.Done():
		v.terminate(cmd, waitCh)
		return "", ctx.Err()
	}

	return classifyOutcome(waitErr, stdout.Bytes(), stderr.Bytes())
}

// terminate stops a still-running process group: SIGTERM first, SIGKILL
// after a short grace period. Returns once the wait goroutine has reaped it.
func (v *Invoker) terminate(cmd *exec.Cmd, waitCh <-chan error) {
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		<-waitCh
	}
}

// resolveInterpreter validates the interpreter up front so a misconfigured
// path fails fast instead of surfacing as an opaque spawn error.
func resolveInterpreter(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInterpreterNotFound("(empty)")
	}
	if !strings.ContainsRune(path, os.PathSeparator) {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", ErrInterpreterNotFound(path)
		}
		return resolved, nil
	}
	if !fsutil.IsExecutableFile(path) {
		return "", ErrInterpreterNotFound(path)
	}
	return path, nil
}

// rewriteShebang replaces (or inserts) the launch directive so the
// materialized script runs standalone under the configured interpreter.
func rewriteShebang(body []byte, interpreter string) []byte {
	shebang := []byte("#!" + interpreter + "\n")
	if bytes.HasPrefix(body, []byte("#!")) {
		nl := bytes.IndexByte(body, '\n')
		if nl < 0 {
			return shebang
		}
		body = body[nl+1:]
	}
	return append(shebang, body...)
}

func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv[:strings.IndexByte(kv, '=')+1]
		if _, ok := overrides[strings.TrimSuffix(key, "=")]; ok {
			continue
		}
		out = append(out, kv)
	}
	for k, val := range overrides {
		out = append(out, k+"="+val)
	}
	return out
}

// classifyOutcome turns exit status, stdout, and stderr into the typed
// taxonomy. Non-zero exits are checked for missing-capability markers before
// falling back to a generic process failure.
func classifyOutcome(waitErr error, stdout, stderr []byte) (string, error) {
	tail := stderrTail(stderr)
	if waitErr != nil {
		if name, hint, ok := ClassifyStderr(tail); ok {
			return "", ErrDependencyMissing(name, hint)
		}
		// Scripts that fail an operation print their error JSON before
		// exiting non-zero; prefer that structured detail when present.
		if resp, ok := parseResponse(stdout); ok && !resp.Success {
			return "", ErrOperationFailed(respError(resp))
		}
		if tail == "" {
			tail = waitErr.Error()
		}
		return "", ErrProcessFailed(tail)
	}

	out := bytes.TrimSpace(stdout)
	if len(out) == 0 {
		return "", ErrInvalidResponse("empty stdout with zero exit status")
	}
	resp, ok := parseResponse(out)
	if !ok {
		return "", ErrInvalidResponse(fmt.Sprintf("not a JSON response: %.200s", out))
	}
	if !resp.Success {
		detail := respError(resp)
		if name, hint, ok := ClassifyStderr(detail); ok {
			return "", ErrDependencyMissing(name, hint)
		}
		return "", ErrOperationFailed(detail)
	}
	return resp.Text, nil
}

func parseResponse(stdout []byte) (scriptResponse, bool) {
	var resp scriptResponse
	out := bytes.TrimSpace(stdout)
	if len(out) == 0 || json.Unmarshal(out, &resp) != nil {
		return scriptResponse{}, false
	}
	return resp, true
}

func respError(r scriptResponse) string {
	if r.Error != nil {
		return *r.Error
	}
	return "script reported failure without detail"
}

func stderrTail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > stderrTailLimit {
		s = s[len(s)-stderrTailLimit:]
	}
	return s
}

var noModuleRe = regexp.MustCompile(`No module named '?([A-Za-z0-9_.]+)'?`)

// moduleMarkers are the interpreter error texts that identify a missing
// Python capability. Matching is a best-effort heuristic over diagnostic
// output, not a guaranteed contract: third-party error wording changes.
var moduleMarkers = []string{
	"ModuleNotFoundError",
	"No module named",
	"ImportError",
	"not installed",
	"import failed",
}

// ClassifyStderr reports whether text indicates a missing capability,
// extracting the module name where the interpreter states one. Callers must
// treat a false result as "unknown", never "installed".
func ClassifyStderr(text string) (name, hint string, ok bool) {
	matched := false
	for _, m := range moduleMarkers {
		if strings.Contains(text, m) {
			matched = true
			break
		}
	}
	if !matched {
		return "", "", false
	}
	name = "python dependency"
	if m := noModuleRe.FindStringSubmatch(text); m != nil {
		name = m[1]
	} else {
		for _, known := range []string{"parakeet_mlx", "parakeet-mlx", "mlx_lm", "mlx-lm"} {
			if strings.Contains(text, known) {
				name = strings.ReplaceAll(known, "-", "_")
				break
			}
		}
	}
	return name, InstallHint(name), true
}

// InstallHint returns the actionable install command for a module name.
func InstallHint(module string) string {
	pkg := strings.ReplaceAll(module, "_", "-")
	if pkg == "python dependency" {
		return "reinstall the transcription dependencies (pip install parakeet-mlx mlx-lm)"
	}
	return "pip install " + pkg
}
