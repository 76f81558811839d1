package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scribed/pkg/types"
)

// cacheEntry holds one warm model. The handle is owned exclusively by the
// cache; callers check it out for the duration of a single inference via the
// release func returned by GetOrCreate and never close it themselves.
type cacheEntry struct {
	id       string
	handle   ModelHandle
	err      error
	lastUsed time.Time
	ready    chan struct{} // closed once the load finishes (success or failure)

	// refs counts in-flight checkouts. Eviction removes the entry from the
	// map immediately but defers Close until the last holder releases, so a
	// handle is never freed under a running inference.
	refs   int
	doomed bool // removed from the map; close on last release
}

func (e *cacheEntry) loaded() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// modelCache keeps a bounded number of expensive in-process models warm.
// All map mutations go through a single mutex; concurrent GetOrCreate calls
// for the same identifier collapse into one load, the second caller waits on
// the first's in-flight entry.
type modelCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	loads     uint64
	evictions uint64

	publisher EventPublisher
	log       zerolog.Logger
}

func newModelCache(pub EventPublisher, log zerolog.Logger) *modelCache {
	return &modelCache{entries: make(map[string]*cacheEntry), publisher: pub, log: log}
}

// GetOrCreate returns the warm handle for id, loading it if necessary, plus
// a release func the caller must invoke once its inference is done. A cached
// hit refreshes the access time and never invokes loader. Loader failures
// surface as LoadFailed and leave no partial entry behind.
//
// The entry count may exceed maxEntries transiently while several distinct
// identifiers load at once (entries still loading are never evicted); every
// load that completes trims the map back down, so the bound holds again as
// soon as the loads settle.
func (c *modelCache) GetOrCreate(ctx context.Context, id string, loader ModelLoader, maxEntries int) (ModelHandle, func(), error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[id]
		if !ok {
			break // miss; fall through to the load path with the lock held
		}
		c.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
		if e.err != nil {
			// The load this caller piggybacked on failed; the entry was
			// already removed by the loading caller.
			return nil, nil, ErrLoadFailed(e.err)
		}
		c.mu.Lock()
		if e.doomed {
			// Evicted between load completion and checkout; start over.
			c.mu.Unlock()
			continue
		}
		e.lastUsed = time.Now()
		e.refs++
		c.mu.Unlock()
		return e.handle, c.releaseFunc(e), nil
	}

	var closers []ModelHandle
	if maxEntries > 0 && len(c.entries) >= maxEntries {
		if h, evicted := c.evictOldestLocked(nil); evicted && h != nil {
			closers = append(closers, h)
		}
	}
	e := &cacheEntry{id: id, lastUsed: time.Now(), ready: make(chan struct{})}
	c.entries[id] = e
	c.mu.Unlock()

	for _, h := range closers {
		_ = h.Close()
	}

	handle, err := loader(ctx)

	c.mu.Lock()
	if err != nil {
		delete(c.entries, id)
		e.err = err
		e.doomed = true
		close(e.ready)
		c.mu.Unlock()
		return nil, nil, ErrLoadFailed(err)
	}
	e.handle = handle
	e.lastUsed = time.Now()
	e.refs = 1
	c.loads++
	close(e.ready)
	// Loads that raced past the bound while nothing was evictable left the
	// map oversized; trim it back now that this entry is loaded.
	closers = closers[:0]
	for maxEntries > 0 && len(c.entries) > maxEntries {
		h, evicted := c.evictOldestLocked(e)
		if !evicted {
			break
		}
		if h != nil {
			closers = append(closers, h)
		}
	}
	c.mu.Unlock()
	for _, h := range closers {
		_ = h.Close()
	}
	c.publisher.Publish(Event{Name: "model_loaded", BackendID: id})
	return handle, c.releaseFunc(e), nil
}

// releaseFunc returns the checkout release for e. Calling it more than once
// is harmless; only the first call drops the reference.
func (c *modelCache) releaseFunc(e *cacheEntry) func() {
	var once sync.Once
	return func() { once.Do(func() { c.release(e) }) }
}

func (c *modelCache) release(e *cacheEntry) {
	c.mu.Lock()
	if e.refs > 0 {
		e.refs--
	}
	closeNow := e.doomed && e.refs == 0 && e.handle != nil
	c.mu.Unlock()
	if closeNow {
		_ = e.handle.Close()
	}
}

// removeLocked unlinks e from the map and returns its handle when it can be
// closed right away. Entries still checked out are only marked doomed; the
// final release closes them.
func (c *modelCache) removeLocked(e *cacheEntry) ModelHandle {
	delete(c.entries, e.id)
	e.doomed = true
	c.evictions++
	if e.refs == 0 && e.handle != nil {
		return e.handle
	}
	return nil
}

// evictOldestLocked removes the loaded entry with the smallest lastUsed,
// skipping except and entries still loading: evicting an in-flight load
// cannot reclaim memory and would strand its waiters. The returned handle,
// when non-nil, must be closed outside the lock.
func (c *modelCache) evictOldestLocked(except *cacheEntry) (ModelHandle, bool) {
	var lru *cacheEntry
	for _, e := range c.entries {
		if e == except || !e.loaded() || e.err != nil {
			continue
		}
		if lru == nil || e.lastUsed.Before(lru.lastUsed) {
			lru = e
		}
	}
	if lru == nil {
		return nil, false
	}
	h := c.removeLocked(lru)
	c.publisher.Publish(Event{Name: "model_evicted", BackendID: lru.id})
	return h, true
}

// Clear removes every loaded entry. Used on a critical memory-pressure
// signal. A handle checked out by an in-flight inference is closed by that
// caller's release, never underneath it.
func (c *modelCache) Clear() {
	c.mu.Lock()
	var handles []ModelHandle
	removed := 0
	for _, e := range c.entries {
		if !e.loaded() {
			continue
		}
		removed++
		if h := c.removeLocked(e); h != nil {
			handles = append(handles, h)
		}
	}
	c.mu.Unlock()
	for _, h := range handles {
		_ = h.Close()
	}
	if removed > 0 {
		c.publisher.Publish(Event{Name: "cache_cleared", Fields: map[string]any{"evicted": removed}})
	}
}

// ClearExceptMostRecent removes every loaded entry except the single one with
// the maximum lastUsed. The softer response to a memory-pressure warning.
func (c *modelCache) ClearExceptMostRecent() {
	c.mu.Lock()
	var newest *cacheEntry
	for _, e := range c.entries {
		if !e.loaded() {
			continue
		}
		if newest == nil || e.lastUsed.After(newest.lastUsed) {
			newest = e
		}
	}
	var handles []ModelHandle
	removed := 0
	for _, e := range c.entries {
		if !e.loaded() || e == newest {
			continue
		}
		removed++
		if h := c.removeLocked(e); h != nil {
			handles = append(handles, h)
		}
	}
	c.mu.Unlock()
	for _, h := range handles {
		_ = h.Close()
	}
	if removed > 0 {
		c.publisher.Publish(Event{Name: "cache_trimmed", Fields: map[string]any{"evicted": removed}})
	}
}

// Len reports the current entry count, in-flight loads included.
func (c *modelCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *modelCache) snapshot() ([]types.CachedModelStatus, uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.CachedModelStatus, 0, len(c.entries))
	for id, e := range c.entries {
		out = append(out, types.CachedModelStatus{
			Backend:      id,
			LastUsedUnix: e.lastUsed.Unix(),
			Ready:        e.loaded() && e.err == nil,
		})
	}
	return out, c.loads, c.evictions
}
