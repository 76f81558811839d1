package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// depProbe caches, per interpreter/module pair, whether the module is
// importable. A capability check is itself a process spawn, so results are
// cached indefinitely: the host application is long-lived and its Python
// environment rarely changes mid-session. Entries leave the cache only via
// explicit invalidation (interpreter change, user re-test, install action).
type depProbe struct {
	inv     *Invoker
	timeout time.Duration
	log     zerolog.Logger

	mu    sync.Mutex
	known map[probeKey]bool
}

type probeKey struct {
	interpreter string
	module      string
}

func newDepProbe(inv *Invoker, timeout time.Duration, log zerolog.Logger) *depProbe {
	return &depProbe{
		inv:     inv,
		timeout: timeout,
		log:     log,
		known:   make(map[probeKey]bool),
	}
}

// Probe reports whether module is importable under interpreter. The first
// call for a pair spawns the embedded probe script; later calls return the
// cached boolean without spawning. Infrastructure failures (interpreter
// missing, timeout) are returned as errors and never cached.
func (p *depProbe) Probe(ctx context.Context, interpreter, module string) (bool, error) {
	key := probeKey{interpreter: interpreter, module: module}
	p.mu.Lock()
	if v, ok := p.known[key]; ok {
		p.mu.Unlock()
		return v, nil
	}
	p.mu.Unlock()

	_, err := p.inv.Run(ctx, ProcessRequest{
		Interpreter: interpreter,
		Script:      "probe.py",
		Args:        []string{module},
		Timeout:     p.timeout,
	})
	switch {
	case err == nil:
		p.store(key, true)
		return true, nil
	case IsDependencyMissing(err) || IsOperationFailed(err):
		p.store(key, false)
		return false, nil
	default:
		// Interpreter missing, timeout, spawn failure: inconclusive, so the
		// next call probes again.
		return false, err
	}
}

func (p *depProbe) store(key probeKey, available bool) {
	p.mu.Lock()
	p.known[key] = available
	p.mu.Unlock()
	p.log.Info().Str("interpreter", key.interpreter).Str("module", key.module).Bool("available", available).Msg("dependency probed")
}

// Invalidate clears cached results for one interpreter path across all
// modules. Must be called on interpreter-path change, explicit re-test, and
// after install/uninstall actions targeting that interpreter.
func (p *depProbe) Invalidate(interpreter string) {
	p.mu.Lock()
	for k := range p.known {
		if k.interpreter == interpreter {
			delete(p.known, k)
		}
	}
	p.mu.Unlock()
}

// InvalidateAll clears every cached result.
func (p *depProbe) InvalidateAll() {
	p.mu.Lock()
	p.known = make(map[probeKey]bool)
	p.mu.Unlock()
}

// InvalidateModule clears one interpreter/module entry, used after a
// targeted install.
func (p *depProbe) InvalidateModule(interpreter, module string) {
	p.mu.Lock()
	delete(p.known, probeKey{interpreter: interpreter, module: module})
	p.mu.Unlock()
}

func (p *depProbe) snapshot() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.known))
	for k, v := range p.known {
		out[k.module] = v
	}
	return out
}
