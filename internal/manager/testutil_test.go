package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"scribed/pkg/types"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// fakeHandle is a trivial in-process model for cache tests.
type fakeHandle struct {
	mu     sync.Mutex
	id     string
	closed bool
}

func (h *fakeHandle) Infer(ctx context.Context, input string, params InferParams) (string, error) {
	return "corrected: " + input, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeLoader returns a loader producing a fakeHandle for id and counts calls.
func fakeLoader(id string, calls *int32) ModelLoader {
	return func(ctx context.Context) (ModelHandle, error) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		return &fakeHandle{id: id}, nil
	}
}

const (
	fixtureOK      = "#!/bin/sh\nprintf '{\"text\":\"hello\",\"success\":true,\"error\":null}'\n"
	fixtureMissing = "#!/bin/sh\necho \"ModuleNotFoundError: No module named 'parakeet_mlx'\" >&2\nexit 1\n"
	// fixtureEcho reports its first payload-bearing argument back as text,
	// reading through an @file reference when the payload was spilled.
	fixtureEcho = `#!/bin/sh
arg="$1"
case "$arg" in
@*) text=$(cat "${arg#@}") ;;
*) text="$arg" ;;
esac
printf '{"text":"%s","success":true,"error":null}' "$text"
`
)

// shellScripts installs /bin/sh fixtures under the embedded script names so
// manager flows run without a Python environment.
func shellScripts(m *Manager, scripts map[string]string) {
	m.invoker.lookupScript = func(name string) ([]byte, error) {
		if body, ok := scripts[name]; ok {
			return []byte(body), nil
		}
		return nil, ErrScriptNotFound(name)
	}
}

func transcribeBackend() types.Backend {
	return types.Backend{
		ID:        "parakeet-base",
		Name:      "Parakeet TDT 0.6B",
		Kind:      types.KindTranscribe,
		Mode:      types.ModeSubprocess,
		Module:    "parakeet_mlx",
		Script:    "transcribe.py",
		ModelRepo: "mlx-community/parakeet-tdt-0.6b-v2",
	}
}

func correctBackend() types.Backend {
	return types.Backend{
		ID:        "mlx-correct",
		Name:      "MLX correction model",
		Kind:      types.KindCorrect,
		Mode:      types.ModeSubprocess,
		Module:    "mlx_lm",
		Script:    "correct.py",
		ModelRepo: "mlx-community/Llama-3.2-3B-Instruct-4bit",
	}
}

func testManager(t *testing.T, pub EventPublisher, backends ...types.Backend) *Manager {
	t.Helper()
	defaults := map[types.BackendKind]string{}
	for _, b := range backends {
		if _, ok := defaults[b.Kind]; !ok {
			defaults[b.Kind] = b.ID
		}
	}
	return NewWithConfig(ManagerConfig{
		Registry:       backends,
		DefaultBackend: defaults,
		Interpreter:    "/bin/sh",
		Logger:         zerolog.Nop(),
		Publisher:      pub,
	})
}

// recordingPublisher captures every published event so tests can assert on
// the request lifecycle.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// names returns the event names in publish order.
func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}

func (p *recordingPublisher) has(name string) bool {
	for _, n := range p.names() {
		if n == name {
			return true
		}
	}
	return false
}
