// Package notify fans out change notifications for observable node state.
//
// A Topic keeps the latest published value together with a sequence number
// that increases by one per publish. Subscribers receive updates on a
// bounded channel; a slow subscriber loses intermediate values but always
// ends on the latest one, and can detect the gap from the sequence numbers.
package notify

import (
	"context"
	"sync"
	"time"
)

// Update is one published value.
type Update[T any] struct {
	Seq   uint64
	Value T
	At    time.Time
}

// Topic holds the latest value of T and its subscribers.
type Topic[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	latest Update[T]
	subs   map[int]chan Update[T]
	nextID int
	closed bool
}

// NewTopic returns a topic whose latest value is initial at sequence zero.
func NewTopic[T any](initial T) *Topic[T] {
	t := &Topic[T]{
		latest: Update[T]{Value: initial, At: time.Now().UTC()},
		subs:   make(map[int]chan Update[T]),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Publish records value as the latest and delivers it to every subscriber.
// It never blocks on a subscriber.
func (t *Topic[T]) Publish(value T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.latest.Seq
	}
	t.latest = Update[T]{Seq: t.latest.Seq + 1, Value: value, At: time.Now().UTC()}
	for _, ch := range t.subs {
		deliver(ch, t.latest)
	}
	t.cond.Broadcast()
	return t.latest.Seq
}

// Latest returns the most recent update.
func (t *Topic[T]) Latest() Update[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest
}

// Subscribe registers a subscriber. The channel immediately holds the current
// latest update. The returned cancel func unregisters and closes the channel.
func (t *Topic[T]) Subscribe(buffer int) (<-chan Update[T], func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Update[T], buffer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	ch <- t.latest
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if sub, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(sub)
			}
		})
	}
}

// Wait blocks until an update newer than since exists or ctx ends.
func (t *Topic[T]) Wait(ctx context.Context, since uint64) (Update[T], error) {
	stop := context.AfterFunc(ctx, func() {
		t.mu.Lock()
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer stop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.latest.Seq <= since && !t.closed {
		if err := ctx.Err(); err != nil {
			return t.latest, err
		}
		t.cond.Wait()
	}
	return t.latest, ctx.Err()
}

// Close unregisters every subscriber and wakes all waiters. Later publishes
// are ignored.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.cond.Broadcast()
}

// deliver replaces the oldest pending update when the subscriber is full.
func deliver[T any](ch chan Update[T], update Update[T]) {
	for {
		select {
		case ch <- update:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
