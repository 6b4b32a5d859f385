package monitor

import (
	"context"
	"sort"
	"sync"
)

// runningGauge is implemented by metrics sinks that track live monitors.
type runningGauge interface {
	SetRunning(n int)
}

// Registry owns at most one Monitor per channel row ID.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	monitors map[string]*Monitor
	retired  []<-chan struct{}
	draining map[string]<-chan struct{}
}

// NewRegistry builds an empty registry sharing deps across monitors.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		monitors: make(map[string]*Monitor),
		draining: make(map[string]<-chan struct{}),
	}
}

// StartChannel starts monitoring spec.Channel. It reports false when a loop
// for that channel is already running.
func (r *Registry) StartChannel(ctx context.Context, spec Spec) bool {
	r.mu.Lock()
	ref := spec.Channel.ID
	m, ok := r.monitors[ref]
	if ok && m.Running() {
		r.mu.Unlock()
		return false
	}
	if ok {
		m.SetSpec(spec)
	} else {
		m = New(spec, r.deps)
		if done, ok := r.draining[ref]; ok {
			m.after(done)
			delete(r.draining, ref)
		}
		r.monitors[ref] = m
	}
	started := m.Start(ctx)
	n := r.countRunningLocked()
	r.mu.Unlock()

	r.publish(n)
	return started
}

// StopChannel stops the loop for ref. It reports false when nothing runs.
func (r *Registry) StopChannel(ref string) bool {
	r.mu.Lock()
	m, ok := r.monitors[ref]
	stopped := ok && m.Stop()
	n := r.countRunningLocked()
	r.mu.Unlock()

	r.publish(n)
	return stopped
}

// Forget stops ref and drops it from the table. Wait still covers its loop,
// and a later StartChannel for ref waits for it to exit.
func (r *Registry) Forget(ref string) {
	r.mu.Lock()
	m, ok := r.monitors[ref]
	if ok {
		m.Stop()
		if done := m.Done(); done != nil {
			r.retired = append(r.retired, done)
			r.draining[ref] = done
		}
		r.pruneLocked()
		delete(r.monitors, ref)
	}
	n := r.countRunningLocked()
	r.mu.Unlock()

	r.publish(n)
}

// pruneLocked drops done channels of forgotten loops that already exited.
func (r *Registry) pruneLocked() {
	live := r.retired[:0]
	for _, done := range r.retired {
		if !closed(done) {
			live = append(live, done)
		}
	}
	r.retired = live
	for ref, done := range r.draining {
		if closed(done) {
			delete(r.draining, ref)
		}
	}
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// IsRunning reports whether ref has an active loop.
func (r *Registry) IsRunning(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[ref]
	return ok && m.Running()
}

// ListActive returns the refs of running monitors, sorted.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs := make([]string, 0, len(r.monitors))
	for ref, m := range r.monitors {
		if m.Running() {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// Snapshot returns the state of every known monitor, running or not.
func (r *Registry) Snapshot() []HandleInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HandleInfo, 0, len(r.monitors))
	for _, m := range r.monitors {
		out = append(out, m.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelRef < out[j].ChannelRef })
	return out
}

// StopAll stops every running loop and returns how many were stopped.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	stopped := 0
	for _, m := range r.monitors {
		if m.Stop() {
			stopped++
		}
	}
	r.mu.Unlock()

	r.publish(0)
	return stopped
}

// Wait blocks until every loop, including draining ones, has exited or ctx
// is done. Running loops are not stopped.
func (r *Registry) Wait(ctx context.Context) error {
	r.mu.Lock()
	pending := make([]<-chan struct{}, 0, len(r.monitors)+len(r.retired))
	pending = append(pending, r.retired...)
	for _, m := range r.monitors {
		if done := m.Done(); done != nil {
			pending = append(pending, done)
		}
	}
	r.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Registry) countRunningLocked() int {
	n := 0
	for _, m := range r.monitors {
		if m.Running() {
			n++
		}
	}
	return n
}

func (r *Registry) publish(n int) {
	if g, ok := r.deps.Metrics.(runningGauge); ok {
		g.SetRunning(n)
	}
}
