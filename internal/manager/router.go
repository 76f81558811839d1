package manager

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scribed/pkg/types"
)

// RequestState tracks one request through its lifecycle.
type RequestState string

const (
	StateIdle      RequestState = "idle"
	StateProbing   RequestState = "probing"
	StateLoading   RequestState = "loading"
	StateSpawning  RequestState = "spawning"
	StateAwaiting  RequestState = "awaiting"
	StateSucceeded RequestState = "succeeded"
	StateFailed    RequestState = "failed"
	StateTimedOut  RequestState = "timed_out"
	StateCancelled RequestState = "cancelled"
)

// Progress receives best-effort, human-readable stage strings. It is
// observability only and never gates or alters control flow.
type Progress func(stage string)

// TranscribeRequest converts a validated local audio file into text.
type TranscribeRequest struct {
	AudioPath  string
	Backend    string
	OnProgress Progress
}

// CorrectRequest rewrites transcript text for fluency.
type CorrectRequest struct {
	Text       string
	Backend    string
	Prompt     string
	OnProgress Progress
}

// Result is the normalized result of either backend path.
type Result struct {
	Text      string
	Backend   string
	RequestID string
	Duration  time.Duration
}

// requestTracker carries a request through the state machine, publishing
// transitions as events and forwarding stages to the progress callback.
type requestTracker struct {
	m        *Manager
	id       string
	op       string
	backend  string
	state    RequestState
	started  time.Time
	progress Progress
}

func (m *Manager) newRequest(op, backend string, progress Progress) *requestTracker {
	return &requestTracker{
		m:        m,
		id:       uuid.NewString(),
		op:       op,
		backend:  backend,
		state:    StateIdle,
		started:  time.Now(),
		progress: progress,
	}
}

func (t *requestTracker) to(s RequestState, stage string) {
	t.state = s
	t.m.publisher.Publish(Event{Name: "request_" + string(s), BackendID: t.backend, RequestID: t.id})
	if stage != "" && t.progress != nil {
		t.progress(stage)
	}
}

// finish maps the terminal error (or nil) onto the terminal state and logs
// the request outcome.
func (t *requestTracker) finish(err error) {
	switch {
	case err == nil:
		t.to(StateSucceeded, "")
	case IsTimedOut(err):
		atomic.AddUint64(&t.m.timeoutsTotal, 1)
		t.to(StateTimedOut, "")
	case errors.Is(err, context.Canceled):
		t.to(StateCancelled, "")
	default:
		t.to(StateFailed, "")
	}
	ev := t.m.log.Info()
	if err != nil {
		ev = t.m.log.Warn().Err(err)
	}
	ev.Str("op", t.op).
		Str("backend", t.backend).
		Str("request_id", t.id).
		Str("state", string(t.state)).
		Dur("dur", time.Since(t.started)).
		Msg("request finished")
}

// Transcribe routes a transcription request to its backend. Transcription
// always runs out of process: one interpreter spawn per call, dependency
// probe first, no silent fallback on failure.
func (m *Manager) Transcribe(ctx context.Context, req TranscribeRequest) (Result, error) {
	b, err := m.backendByID(req.Backend, types.KindTranscribe)
	if err != nil {
		return Result{}, err
	}
	atomic.AddUint64(&m.transcribesTotal, 1)
	tr := m.newRequest("transcribe", b.ID, req.OnProgress)

	text, err := m.runSubprocess(ctx, tr, b, []string{b.ModelRepo, req.AudioPath}, nil, m.cfg.TranscribeTimeout, "transcribing audio")
	if err != nil {
		tr.finish(err)
		return Result{}, err
	}
	return m.normalize(tr, b.ID, text)
}

// Correct routes a correction request. In-process backends go through the
// warm model cache; subprocess backends follow the same probe-spawn path as
// transcription with the text payload spilled to a file when large.
func (m *Manager) Correct(ctx context.Context, req CorrectRequest) (Result, error) {
	b, err := m.backendByID(req.Backend, types.KindCorrect)
	if err != nil {
		return Result{}, err
	}
	atomic.AddUint64(&m.correctionsTotal, 1)
	tr := m.newRequest("correct", b.ID, req.OnProgress)

	var text string
	if b.Mode == types.ModeInProcess {
		text, err = m.correctInProcess(ctx, tr, b, req)
	} else {
		args := []string{b.ModelRepo}
		if req.Prompt != "" {
			args = append(args, req.Prompt)
		}
		text, err = m.runSubprocess(ctx, tr, b, args, []byte(req.Text), m.cfg.CorrectTimeout, "correcting transcript")
	}
	if err != nil {
		tr.finish(err)
		return Result{}, err
	}
	return m.normalize(tr, b.ID, text)
}

// ProbeModule checks (or re-checks, with force) whether module is importable
// under the configured interpreter.
func (m *Manager) ProbeModule(ctx context.Context, module string, force bool) (bool, error) {
	if force {
		m.probe.InvalidateModule(m.cfg.Interpreter, module)
	}
	return m.probe.Probe(ctx, m.cfg.Interpreter, module)
}

func (m *Manager) runSubprocess(ctx context.Context, tr *requestTracker, b types.Backend, args []string, payload []byte, timeout time.Duration, stage string) (string, error) {
	tr.to(StateProbing, "checking "+b.Module)
	available, err := m.probe.Probe(ctx, m.cfg.Interpreter, b.Module)
	if err != nil {
		return "", err
	}
	if !available {
		// Short-circuit: never attempt the real operation when the probe
		// already knows the capability is absent.
		return "", ErrDependencyMissing(b.Module, InstallHint(b.Module))
	}

	tr.to(StateSpawning, "starting "+b.Name)
	preq := ProcessRequest{
		Interpreter: m.cfg.Interpreter,
		Script:      b.Script,
		Args:        args,
		Payload:     payload,
		InlineLimit: m.cfg.PayloadInlineLimit,
		Timeout:     timeout,
		Env:         m.cfg.Env,
	}
	tr.to(StateAwaiting, stage)
	return m.invoker.Run(ctx, preq)
}

func (m *Manager) correctInProcess(ctx context.Context, tr *requestTracker, b types.Backend, req CorrectRequest) (string, error) {
	tr.to(StateLoading, "loading "+b.Name)
	handle, release, err := m.cache.GetOrCreate(ctx, b.ID, func(ctx context.Context) (ModelHandle, error) {
		return loadLlamaModel(b.ModelPath, m.cfg.CtxSize, m.cfg.Threads)
	}, m.cfg.MaxWarmModels)
	if err != nil {
		return "", err
	}
	// Keep the handle checked out until the inference returns; a concurrent
	// eviction must not close it mid-call.
	defer release()
	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultCorrectionPrompt
	}
	tr.to(StateAwaiting, "correcting transcript")
	return handle.Infer(ctx, req.Text, InferParams{SystemPrompt: prompt, MaxTokens: 1024})
}

// normalize maps an empty result to EmptyResult and finalizes the tracker.
// Both backend paths funnel through here so callers see one result type.
func (m *Manager) normalize(tr *requestTracker, backend, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		err := ErrEmptyResult()
		tr.finish(err)
		return Result{}, err
	}
	tr.finish(nil)
	return Result{
		Text:      text,
		Backend:   backend,
		RequestID: tr.id,
		Duration:  time.Since(tr.started),
	}, nil
}

// defaultCorrectionPrompt matches the embedded correct.py default so the
// in-process and subprocess paths behave alike.
const defaultCorrectionPrompt = "You are a transcription corrector. Fix grammar, casing, punctuation, and " +
	"obvious mis-hearings that do not change meaning. Remove filler words and " +
	"transcribed pauses that add no meaning. Do not remove meaningful words. " +
	"Do not summarize or add content. Output only the corrected text."
