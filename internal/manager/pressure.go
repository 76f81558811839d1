package manager

import (
	"sync/atomic"

	"scribed/internal/pressure"
)

// HandleMemoryPressure is the asynchronous entry point for OS memory-pressure
// signals. It may run concurrently with in-flight GetOrCreate calls; the
// cache's own mutex keeps the map mutations totally ordered.
//
// Warning keeps the single most recently used model; critical drops them all.
func (m *Manager) HandleMemoryPressure(level pressure.Level) {
	atomic.AddUint64(&m.pressureEventsTotal, 1)
	m.log.Warn().Str("level", level.String()).Msg("memory pressure signal")
	m.publisher.Publish(Event{Name: "memory_pressure", Fields: map[string]any{"level": level.String()}})
	switch level {
	case pressure.LevelCritical:
		m.cache.Clear()
	case pressure.LevelWarning:
		m.cache.ClearExceptMostRecent()
	}
}
