package node

import (
	"errors"
	"fmt"
	"sync"

	"yanode/internal/notify"
)

// ErrInvalidTransition is returned when a status change is not in the table.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the externally visible node lifecycle state.
type Status int

const (
	Off Status = iota
	Starting
	Ready
	Error
)

var statusNames = [...]string{"off", "starting", "ready", "error"}

func (s Status) String() string {
	if s < Off || s > Error {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node status %q", text)
}

// transitions lists every allowed change. Self transitions are absent, so
// subscribers never see the same status twice in a row.
var transitions = map[Status][]Status{
	Off:      {Starting},
	Starting: {Ready, Error},
	Ready:    {Off, Error},
	Error:    {Off},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StateMachine holds the current status and publishes every change.
type StateMachine struct {
	mu    sync.Mutex
	topic *notify.Topic[Status]
}

// NewStateMachine starts in Off.
func NewStateMachine() *StateMachine {
	return &StateMachine{topic: notify.NewTopic(Off)}
}

// Current returns the current status.
func (m *StateMachine) Current() Status {
	return m.topic.Latest().Value
}

// Transition moves to next. The change is published before it returns.
func (m *StateMachine) Transition(next Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.topic.Latest().Value
	if !CanTransition(current, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	m.topic.Publish(next)
	return nil
}

// Subscribe streams status changes.
func (m *StateMachine) Subscribe(buffer int) (<-chan notify.Update[Status], func()) {
	return m.topic.Subscribe(buffer)
}

// Latest returns the current status with its sequence number.
func (m *StateMachine) Latest() notify.Update[Status] {
	return m.topic.Latest()
}

// Close releases subscribers.
func (m *StateMachine) Close() {
	m.topic.Close()
}
