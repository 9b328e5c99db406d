package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path and delivers them as one batch
// after the window passes with no new events. Coalescing rules:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - DELETE + CREATE = MODIFY (file was replaced, typical of atomic saves)
//   - otherwise the latest operation wins
type Debouncer struct {
	window  time.Duration
	deliver func([]Event)

	mu      sync.Mutex
	pending map[string]Event
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer that calls deliver with each batch.
// deliver runs on a timer goroutine.
func NewDebouncer(window time.Duration, deliver func([]Event)) *Debouncer {
	return &Debouncer{
		window:  window,
		deliver: deliver,
		pending: make(map[string]Event),
	}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		merged, keep := coalesce(existing, event)
		if keep {
			d.pending[event.Path] = merged
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = event
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func coalesce(existing, next Event) (Event, bool) {
	switch {
	case existing.Operation == OpCreate && next.Operation == OpModify:
		existing.Timestamp = next.Timestamp
		return existing, true
	case existing.Operation == OpCreate && next.Operation == OpDelete:
		return Event{}, false
	case existing.Operation == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return next, true
	default:
		return next, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]Event, 0, len(d.pending))
	for _, e := range d.pending {
		batch = append(batch, e)
	}
	d.pending = make(map[string]Event)
	d.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.deliver(batch)
}

// Stop discards pending events. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]Event)
}
