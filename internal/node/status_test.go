package node_test

import (
	"errors"
	"testing"

	"yanode/internal/node"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to node.Status
		ok       bool
	}{
		{node.Off, node.Starting, true},
		{node.Off, node.Ready, false},
		{node.Off, node.Error, false},
		{node.Starting, node.Ready, true},
		{node.Starting, node.Error, true},
		{node.Starting, node.Off, false},
		{node.Ready, node.Off, true},
		{node.Ready, node.Error, true},
		{node.Ready, node.Starting, false},
		{node.Error, node.Off, true},
		{node.Error, node.Starting, false},
		{node.Error, node.Ready, false},
		{node.Ready, node.Ready, false},
		{node.Off, node.Off, false},
	}
	for _, tc := range cases {
		if got := node.CanTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestStateMachinePublishesChanges(t *testing.T) {
	m := node.NewStateMachine()
	defer m.Close()
	ch, cancel := m.Subscribe(8)
	defer cancel()

	if first := <-ch; first.Value != node.Off || first.Seq != 0 {
		t.Fatalf("initial update = %+v, want off at seq 0", first)
	}
	for _, next := range []node.Status{node.Starting, node.Ready} {
		if err := m.Transition(next); err != nil {
			t.Fatalf("Transition(%s): %v", next, err)
		}
	}
	if err := m.Transition(node.Ready); !errors.Is(err, node.ErrInvalidTransition) {
		t.Fatalf("duplicate transition error = %v, want ErrInvalidTransition", err)
	}

	var got []node.Status
	for len(got) < 2 {
		u := <-ch
		got = append(got, u.Value)
	}
	if got[0] != node.Starting || got[1] != node.Ready {
		t.Fatalf("published %v, want [starting ready]", got)
	}
	if latest := m.Latest(); latest.Seq != 2 || m.Current() != node.Ready {
		t.Fatalf("latest = %+v, current = %s", latest, m.Current())
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []node.Status{node.Off, node.Starting, node.Ready, node.Error} {
		text, err := s.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%d): %v", s, err)
		}
		var back node.Status
		if err := back.UnmarshalText(text); err != nil || back != s {
			t.Fatalf("round trip %q = %v, %v", text, back, err)
		}
	}
	var s node.Status
	if err := s.UnmarshalText([]byte("paused")); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}
