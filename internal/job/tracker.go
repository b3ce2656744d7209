package job

import (
	"sync"
	"sync/atomic"

	"yanode/internal/notify"
)

// Tracker holds the node's current job. Writers are serialized; readers load
// the pointer without locking.
type Tracker struct {
	mu      sync.Mutex
	current atomic.Pointer[Job]
	topic   *notify.Topic[*Job]
}

func NewTracker() *Tracker {
	return &Tracker{topic: notify.NewTopic[*Job](nil)}
}

// Current returns the current job or nil.
func (t *Tracker) Current() *Job {
	return t.current.Load()
}

// Update applies fn to the current job (nil when none) and publishes the
// result if fn returned a different pointer. fn must not block.
func (t *Tracker) Update(fn func(*Job) *Job) (prev, next *Job, changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev = t.current.Load()
	next = fn(prev)
	if next == prev {
		return prev, next, false
	}
	t.current.Store(next)
	t.topic.Publish(next)
	return prev, next, true
}

// Clear drops the current job and returns it.
func (t *Tracker) Clear() *Job {
	prev, _, _ := t.Update(func(*Job) *Job { return nil })
	return prev
}

// Subscribe streams job changes; nil values mean no current job.
func (t *Tracker) Subscribe(buffer int) (<-chan notify.Update[*Job], func()) {
	return t.topic.Subscribe(buffer)
}

// Latest returns the current job with its sequence number.
func (t *Tracker) Latest() notify.Update[*Job] {
	return t.topic.Latest()
}

// Close releases subscribers.
func (t *Tracker) Close() {
	t.topic.Close()
}
