package runtime

import (
	"sort"
	"sync"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/runner"
	"github.com/google/uuid"
)

// table is the active-runner table keyed by state id, plus the set of
// corrupt states: states whose runner failed to start or ignored a forced
// end. Writes happen under the controller lock or from runner callbacks;
// reads may come from any goroutine.
type table struct {
	mu      sync.RWMutex
	runners map[string]*runner.Runner
	corrupt map[string]struct{}
}

func newTable() *table {
	return &table{
		runners: make(map[string]*runner.Runner),
		corrupt: make(map[string]struct{}),
	}
}

// put installs a fresh runner; the state starts out healthy.
func (t *table) put(stateID string, r *runner.Runner) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runners[stateID] = r
	delete(t.corrupt, stateID)
}

func (t *table) markCorrupt(stateID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.corrupt[stateID] = struct{}{}
}

func (t *table) isCorrupt(stateID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.corrupt[stateID]
	return ok
}

func (t *table) corruptIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.corrupt))
	for id := range t.corrupt {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *table) forgetCorrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.corrupt)
}

func (t *table) take(stateID string) *runner.Runner {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runners[stateID]
	delete(t.runners, stateID)
	return r
}

// owns reports whether runnerID is the current runner of stateID.
func (t *table) owns(stateID, runnerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runners[stateID]
	return ok && r.ID() == runnerID
}

func (t *table) clear() []*runner.Runner {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*runner.Runner, 0, len(t.runners))
	for _, r := range t.runners {
		out = append(out, r)
	}
	t.runners = make(map[string]*runner.Runner)
	return out
}

func (t *table) snapshot() []*runner.Runner {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*runner.Runner, 0, len(t.runners))
	for _, r := range t.runners {
		out = append(out, r)
	}
	return out
}

func (t *table) stateIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.runners))
	for id := range t.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runners)
}

// ring keeps the most recent exceptions, oldest first.
type ring struct {
	mu    sync.Mutex
	items []domain.ExceptionEvent
	next  int
	full  bool
}

func newRing(capacity int) *ring {
	return &ring{items: make([]domain.ExceptionEvent, capacity)}
}

func (r *ring) add(ev domain.ExceptionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = ev
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) list() []domain.ExceptionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]domain.ExceptionEvent(nil), r.items[:r.next]...)
	}
	out := make([]domain.ExceptionEvent, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

// recordException stores ev and fans it out to the exception listeners.
func (c *Controller) recordException(ev domain.ExceptionEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	c.exceptions.add(ev)
	c.notifyException(ev)
}

// Exceptions returns the retained exception history, oldest first.
func (c *Controller) Exceptions() []domain.ExceptionEvent {
	return c.exceptions.list()
}
