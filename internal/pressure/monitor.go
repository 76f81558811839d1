// Package pressure turns OS low-memory signals into warning/critical levels.
//
// On Linux the kernel's pressure stall information (PSI) file
// /proc/pressure/memory is polled; other platforms rely on Raise, which the
// daemon wires to signals or leaves to tests.
package pressure

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is the severity of a memory-pressure signal.
type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "none"
	}
}

// Handler receives pressure levels. Handlers must be safe to call from a
// background goroutine.
type Handler func(Level)

const (
	defaultPSIPath      = "/proc/pressure/memory"
	defaultPollInterval = 5 * time.Second
	defaultWarnSomePct  = 10.0
	defaultCritFullPct  = 5.0
)

// Monitor polls the PSI file and notifies handlers on upward level
// transitions. Raise injects a level directly, independent of polling.
type Monitor struct {
	PSIPath      string
	PollInterval time.Duration
	// WarnSomePct is the "some avg10" percentage above which a warning fires.
	WarnSomePct float64
	// CritFullPct is the "full avg10" percentage above which critical fires.
	CritFullPct float64
	Log         zerolog.Logger

	mu       sync.Mutex
	handlers []Handler
	last     Level
}

// Notify registers a handler for subsequent signals.
func (m *Monitor) Notify(h Handler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

// Raise delivers a level to every handler, used by signal wiring and tests.
func (m *Monitor) Raise(level Level) {
	if level == LevelNone {
		return
	}
	m.mu.Lock()
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for _, h := range handlers {
		h(level)
	}
}

// Start polls until ctx is done. Missing PSI support (non-Linux, old kernel)
// disables polling; Raise still works.
func (m *Monitor) Start(ctx context.Context) {
	path := m.PSIPath
	if path == "" {
		path = defaultPSIPath
	}
	if _, err := os.Stat(path); err != nil {
		m.Log.Debug().Str("path", path).Msg("memory PSI not available; pressure polling disabled")
		return
	}
	interval := m.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	go m.poll(ctx, path, interval)
}

func (m *Monitor) poll(ctx context.Context, path string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		level := m.classify(string(b))
		m.mu.Lock()
		rising := level > m.last
		m.last = level
		m.mu.Unlock()
		// Only the upward edge fires: a sustained stall should not evict the
		// freshly reloaded model every poll tick.
		if rising && level != LevelNone {
			m.Log.Warn().Str("level", level.String()).Msg("memory pressure detected")
			m.Raise(level)
		}
	}
}

func (m *Monitor) classify(psi string) Level {
	warnSome := m.WarnSomePct
	if warnSome <= 0 {
		warnSome = defaultWarnSomePct
	}
	critFull := m.CritFullPct
	if critFull <= 0 {
		critFull = defaultCritFullPct
	}
	some, full := ParsePSI(psi)
	switch {
	case full >= critFull:
		return LevelCritical
	case some >= warnSome:
		return LevelWarning
	default:
		return LevelNone
	}
}

// ParsePSI extracts the avg10 percentages from the two-line PSI format:
//
//	some avg10=0.00 avg60=0.00 avg300=0.00 total=0
//	full avg10=0.00 avg60=0.00 avg300=0.00 total=0
func ParsePSI(text string) (someAvg10, fullAvg10 float64) {
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		var v float64
		for _, f := range fields[1:] {
			if strings.HasPrefix(f, "avg10=") {
				v, _ = strconv.ParseFloat(strings.TrimPrefix(f, "avg10="), 64)
				break
			}
		}
		switch fields[0] {
		case "some":
			someAvg10 = v
		case "full":
			fullAvg10 = v
		}
	}
	return someAvg10, fullAvg10
}
