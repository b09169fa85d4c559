package turns

import (
	"sync"
)

// Registry owns one recorder per live reply session. Every Acquire holds a
// reference; the recorder and its confirmed set are dropped when the last
// holder releases it.
type Registry struct {
	saver Saver
	opts  []Option

	mu        sync.Mutex
	recorders map[string]*registryEntry
}

type registryEntry struct {
	rec  *SyncRecorder
	refs int
}

// NewRegistry creates a registry whose recorders save through saver
func NewRegistry(saver Saver, opts ...Option) *Registry {
	return &Registry{
		saver:     saver,
		opts:      opts,
		recorders: make(map[string]*registryEntry),
	}
}

// Acquire returns the recorder for sessionID, creating it when absent. The
// second result reports whether it was created.
func (reg *Registry) Acquire(sessionID string, extra ...Option) (*SyncRecorder, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if e, ok := reg.recorders[sessionID]; ok {
		e.refs++
		return e.rec, false
	}

	opts := append(append([]Option(nil), reg.opts...), extra...)
	rec := NewSyncRecorder(NewRecorder(sessionID, reg.saver, opts...))
	reg.recorders[sessionID] = &registryEntry{rec: rec, refs: 1}
	return rec, true
}

// Get returns the recorder for sessionID if one is live
func (reg *Registry) Get(sessionID string) (*SyncRecorder, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.recorders[sessionID]
	if !ok {
		return nil, false
	}
	return e.rec, true
}

// Release gives back one reference to rec. It reports whether that was the
// last one and the recorder was dropped. Releasing a recorder that is not
// the current one for sessionID does nothing.
func (reg *Registry) Release(sessionID string, rec *SyncRecorder) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.recorders[sessionID]
	if !ok || e.rec != rec {
		return false
	}
	e.refs--
	if e.refs > 0 {
		return false
	}
	delete(reg.recorders, sessionID)
	return true
}

// Len returns the number of live recorders
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.recorders)
}
