package supervisor

import (
	"os/exec"
	"slices"
	"sync/atomic"
	"time"
)

// Role names a supervised daemon.
type Role string

const (
	RoleYagna    Role = "yagna"
	RoleProvider Role = "provider"
)

// Exit describes how a supervised process ended.
type Exit struct {
	Role      Role
	PID       int
	Code      int
	Solicited bool
	Err       error
	At        time.Time
}

// Handle identifies one supervised OS process. Its exit fields are written
// once, before Done is closed.
type Handle struct {
	role    Role
	pid     int
	path    string
	args    []string
	env     []string
	started time.Time

	cmd      *exec.Cmd
	output   []*lineWriter
	stopping atomic.Bool
	done     chan struct{}
	exit     Exit
}

func (h *Handle) Role() Role           { return h.role }
func (h *Handle) PID() int             { return h.pid }
func (h *Handle) Path() string         { return h.path }
func (h *Handle) StartedAt() time.Time { return h.started }

// Args returns a copy of the launch arguments.
func (h *Handle) Args() []string { return slices.Clone(h.args) }

// Env returns a copy of the environment snapshot the process was started with.
func (h *Handle) Env() []string { return slices.Clone(h.env) }

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Alive reports whether the process has not been observed to exit.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Exit returns the exit record once the process has ended.
func (h *Handle) Exit() (Exit, bool) {
	select {
	case <-h.done:
		return h.exit, true
	default:
		return Exit{}, false
	}
}
