// Package task tracks work in flight inside the weave node. Entries are
// keyed by operation and input key (for merklize, the content key of the
// buffer) so that identical input is never processed twice at once. Only
// in-memory state is kept; nothing survives a restart.
package task

import (
	"sort"
	"sync"
	"time"
)

// Entry describes one running task.
type Entry struct {
	Operation string
	Key       string
	StartedAt time.Time
}

// Tracker is a concurrency-safe registry of running tasks. Invalid inputs
// are ignored.
type Tracker interface {
	TryStart(operation, key string) bool
	End(operation, key string)
	Snapshot() []Entry
}

// InMemoryTracker implements Tracker with a mutex guarded map.
type InMemoryTracker struct {
	mu  sync.Mutex
	now func() time.Time
	// operation -> key -> start time
	running map[string]map[string]time.Time
}

// New returns an empty tracker.
func New() *InMemoryTracker {
	return &InMemoryTracker{now: time.Now, running: make(map[string]map[string]time.Time)}
}

// TryStart registers (operation, key) and reports whether it was not
// already running.
func (t *InMemoryTracker) TryStart(operation, key string) bool {
	if operation == "" || key == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.running[operation]
	if !ok {
		m = make(map[string]time.Time)
		t.running[operation] = m
	}
	if _, exists := m[key]; exists {
		return false
	}
	m[key] = t.now()
	return true
}

// End removes (operation, key). Unknown pairs are a no-op.
func (t *InMemoryTracker) End(operation, key string) {
	if operation == "" || key == "" {
		return
	}
	t.mu.Lock()
	if m, ok := t.running[operation]; ok {
		delete(m, key)
		if len(m) == 0 {
			delete(t.running, operation)
		}
	}
	t.mu.Unlock()
}

// Count returns the number of running tasks for operation.
func (t *InMemoryTracker) Count(operation string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running[operation])
}

// Snapshot returns a copy of the running tasks, oldest first.
func (t *InMemoryTracker) Snapshot() []Entry {
	t.mu.Lock()
	out := make([]Entry, 0, len(t.running))
	for op, m := range t.running {
		for key, started := range m {
			out = append(out, Entry{Operation: op, Key: key, StartedAt: started})
		}
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Key < out[j].Key
	})
	return out
}
