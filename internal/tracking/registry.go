package tracking

import (
	"context"
	"sync"
)

// Registry hands out one Tracker per agent. Trackers never share state.
//
// It also owns the cancellation of each agent's active fix stream: at most
// one stream runs per agent, and Forget ends it.
type Registry struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
	watches  map[string]watch
	next     uint64
}

type watch struct {
	id     uint64
	cancel context.CancelFunc
}

func NewRegistry() *Registry {
	return &Registry{
		trackers: make(map[string]*Tracker),
		watches:  make(map[string]watch),
	}
}

// Tracker returns the agent's tracker, creating it on first use.
func (r *Registry) Tracker(agentID string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trackerLocked(agentID)
}

func (r *Registry) trackerLocked(agentID string) *Tracker {
	t, ok := r.trackers[agentID]
	if !ok {
		t = NewTracker(agentID)
		r.trackers[agentID] = t
	}
	return t
}

// Watch registers a new fix stream for the agent and returns a context that
// is cancelled when the agent is forgotten or a newer stream replaces this
// one. The caller must call release when the stream ends.
func (r *Registry) Watch(ctx context.Context, agentID string) (context.Context, *Tracker, func()) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	if prev, ok := r.watches[agentID]; ok {
		prev.cancel()
	}
	r.next++
	id := r.next
	r.watches[agentID] = watch{id: id, cancel: cancel}
	t := r.trackerLocked(agentID)
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		if w, ok := r.watches[agentID]; ok && w.id == id {
			delete(r.watches, agentID)
		}
		r.mu.Unlock()
		cancel()
	}
	return ctx, t, release
}

// Forget drops the agent's tracker and cancels its active stream (logout,
// going offline).
func (r *Registry) Forget(agentID string) {
	r.mu.Lock()
	if w, ok := r.watches[agentID]; ok {
		w.cancel()
		delete(r.watches, agentID)
	}
	delete(r.trackers, agentID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trackers)
}

// Watching reports whether the agent has an active stream.
func (r *Registry) Watching(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.watches[agentID]
	return ok
}
