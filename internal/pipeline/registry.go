package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Run is the live handle for one pipeline execution over a document. It is
// exclusively owned by the Registry while live; the runner borrows it for
// the duration of execution.
type Run struct {
	DocumentID  string
	ExecutionID string
	Pages       []int

	cancelled atomic.Bool
	done      chan struct{}
}

// Cancel asks the runner to stop before the next page. Pages already
// persisted stay persisted.
func (r *Run) Cancel() { r.cancelled.Store(true) }

// Cancelled reports whether Cancel has been called.
func (r *Run) Cancelled() bool { return r.cancelled.Load() }

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Running reports whether the run has not yet reached a terminal state.
func (r *Run) Running() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Registry holds at most one live run handle per document identity. All
// access goes through the mutex; admit and release are called from
// concurrently scheduled runs.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*Run)}
}

// Admit creates a handle for a new run over the given pages. It returns
// ErrAlreadyRunning when a non-terminal handle already exists for id.
func (g *Registry) Admit(id string, pages []int) (*Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.runs[id]; ok && existing.Running() {
		return nil, ErrAlreadyRunning
	}
	run := &Run{
		DocumentID:  id,
		ExecutionID: uuid.NewString(),
		Pages:       pages,
		done:        make(chan struct{}),
	}
	g.runs[id] = run
	return run, nil
}

// IsActive reports whether a non-terminal run exists for id.
func (g *Registry) IsActive(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[id]
	return ok && run.Running()
}

// Get returns the live handle for id, if any.
func (g *Registry) Get(id string) (*Run, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	run, ok := g.runs[id]
	if !ok || !run.Running() {
		return nil, false
	}
	return run, true
}

// Release marks the run terminal and removes it from the registry. The
// runner calls it in a deferred block regardless of the run outcome.
func (g *Registry) Release(id string, run *Run) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.runs[id]; ok && current == run {
		delete(g.runs, id)
	}
	select {
	case <-run.done:
	default:
		close(run.done)
	}
}
