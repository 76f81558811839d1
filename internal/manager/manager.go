package manager

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"scribed/pkg/types"
)

// Manager routes requests to the correct backend and normalizes results.
// It owns the warm model cache, the dependency probe, and the process invoker.
type Manager struct {
	cfg       ManagerConfig
	log       zerolog.Logger
	publisher EventPublisher

	cache   *modelCache
	probe   *depProbe
	invoker *Invoker

	startTime time.Time

	transcribesTotal    uint64
	correctionsTotal    uint64
	timeoutsTotal       uint64
	pressureEventsTotal uint64
}

// ListBackends returns a copy of the configured backend registry.
func (m *Manager) ListBackends() []types.Backend {
	out := make([]types.Backend, len(m.cfg.Registry))
	copy(out, m.cfg.Registry)
	return out
}

// backendByID resolves a backend id, falling back to the configured default
// for the given kind when id is empty.
func (m *Manager) backendByID(id string, kind types.BackendKind) (types.Backend, error) {
	if id == "" {
		id = m.cfg.DefaultBackend[kind]
	}
	if id == "" {
		return types.Backend{}, ErrBackendNotFound("(unspecified)")
	}
	for _, b := range m.cfg.Registry {
		if b.ID == id && b.Kind == kind {
			return b, nil
		}
	}
	return types.Backend{}, ErrBackendNotFound(id)
}

// Modules returns the distinct Python modules subprocess backends depend on.
func (m *Manager) Modules() []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range m.cfg.Registry {
		if b.Mode == types.ModeSubprocess && b.Module != "" && !seen[b.Module] {
			seen[b.Module] = true
			out = append(out, b.Module)
		}
	}
	return out
}

// Ready reports whether the manager can accept work. The daemon is usable as
// soon as it starts; model loads and probes happen lazily per request.
func (m *Manager) Ready() bool { return true }

// LlamaBuilt reports whether this binary carries the in-process llama
// runtime (built with -tags=llama).
func LlamaBuilt() bool { return llamaBuilt }

// Status is a read-only projection of manager state for GET /v1/status.
func (m *Manager) Status() types.StatusResponse {
	cached, loads, evictions := m.cache.snapshot()
	return types.StatusResponse{
		CachedModels:        cached,
		MaxWarmModels:       m.cfg.MaxWarmModels,
		Interpreter:         m.cfg.Interpreter,
		Probes:              m.probe.snapshot(),
		LoadsTotal:          loads,
		EvictionsTotal:      evictions,
		PressureEventsTotal: atomic.LoadUint64(&m.pressureEventsTotal),
		SpawnsTotal:         m.invoker.Spawns(),
		TranscribesTotal:    atomic.LoadUint64(&m.transcribesTotal),
		CorrectionsTotal:    atomic.LoadUint64(&m.correctionsTotal),
		TimeoutsTotal:       atomic.LoadUint64(&m.timeoutsTotal),
		UptimeSeconds:       int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix:      time.Now().Unix(),
	}
}

// ClearCache evicts warm models. With keepMostRecent the single most recently
// used entry survives (the mild pressure response).
func (m *Manager) ClearCache(keepMostRecent bool) {
	if keepMostRecent {
		m.cache.ClearExceptMostRecent()
		return
	}
	m.cache.Clear()
}

// InvalidateProbes drops cached dependency-probe results. Callers must do
// this on interpreter-path change and after install/uninstall actions.
func (m *Manager) InvalidateProbes() { m.probe.InvalidateAll() }
