package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"yanode/internal/logging"
)

var (
	// ErrSpawnFailed reports a missing executable or an OS refusal to spawn.
	ErrSpawnFailed = errors.New("spawn failed")
	// ErrStopTimedOut marks a graceful stop that exceeded its deadline. Stop
	// recovers from it by killing the process; it only appears in logs.
	ErrStopTimedOut = errors.New("stop timed out")
	// ErrAlreadyRunning is returned when a role already has a live handle.
	ErrAlreadyRunning = errors.New("role already running")
	// ErrKillFailed is returned when a killed process was never reaped.
	ErrKillFailed = errors.New("process did not exit after kill")
)

const (
	defaultOutputWaitDelay = 2 * time.Second
	defaultKillWait        = 5 * time.Second
)

// Spec describes a process to launch.
type Spec struct {
	Role Role
	Path string
	Dir  string
	Args []string
	// Env is the complete KEY=VALUE environment of the child.
	Env []string
}

// StopResult summarizes how Stop ended a process.
type StopResult struct {
	Role          Role
	PID           int
	AlreadyExited bool
	Forced        bool
	Elapsed       time.Duration
}

// ExitHandler observes process exits. It runs on the supervisor's reaper
// goroutine and must not block for long.
type ExitHandler func(Exit)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithExitHandler registers fn to be called once per handle when it exits.
func WithExitHandler(fn ExitHandler) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.handlers = append(s.handlers, fn)
		}
	}
}

// WithKillWait bounds how long Stop waits for reaping after a forced kill.
func WithKillWait(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.killWait = d
		}
	}
}

// Supervisor owns the live daemon handles, keyed by role.
type Supervisor struct {
	logger   *slog.Logger
	handlers []ExitHandler
	killWait time.Duration

	mu      sync.Mutex
	handles map[Role]*Handle
	reapers sync.WaitGroup
}

// New constructs a Supervisor.
func New(logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		logger:   logging.NewComponentLogger(logger, "supervisor"),
		killWait: defaultKillWait,
		handles:  make(map[Role]*Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches spec and registers the handle under spec.Role.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := resolveExecutable(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, spec.Role, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.handles[spec.Role]; ok && existing.Alive() {
		return nil, fmt.Errorf("%w: %s (pid %d)", ErrAlreadyRunning, spec.Role, existing.pid)
	}

	logger := s.logger.With(logging.String(logging.FieldRole, string(spec.Role)))
	stdout := newLineWriter(logger, "stdout")
	stderr := newLineWriter(logger, "stderr")

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = slices.Clone(spec.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = defaultOutputWaitDelay
	configureChild(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, spec.Role, err)
	}

	h := &Handle{
		role:    spec.Role,
		pid:     cmd.Process.Pid,
		path:    path,
		args:    slices.Clone(spec.Args),
		env:     slices.Clone(spec.Env),
		started: time.Now(),
		cmd:     cmd,
		output:  []*lineWriter{stdout, stderr},
		done:    make(chan struct{}),
	}
	s.handles[spec.Role] = h

	logger.Info("daemon started",
		logging.Int("pid", h.pid),
		logging.String("path", path),
		logging.Any("args", spec.Args),
		logging.String(logging.FieldEventType, "daemon_started"),
	)

	s.reapers.Add(1)
	go s.reap(h, logger)
	return h, nil
}

func (s *Supervisor) reap(h *Handle, logger *slog.Logger) {
	defer s.reapers.Done()

	waitErr := h.cmd.Wait()
	for _, w := range h.output {
		w.Flush()
	}

	exit := Exit{
		Role:      h.role,
		PID:       h.pid,
		Code:      -1,
		Solicited: h.stopping.Load(),
		At:        time.Now(),
	}
	if state := h.cmd.ProcessState; state != nil {
		exit.Code = state.ExitCode()
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		exit.Err = waitErr
	}
	h.exit = exit
	close(h.done)

	s.mu.Lock()
	if s.handles[h.role] == h {
		delete(s.handles, h.role)
	}
	s.mu.Unlock()

	attrs := []logging.Attr{
		logging.Int("pid", exit.PID),
		logging.Int("exit_code", exit.Code),
		logging.Bool("solicited", exit.Solicited),
		logging.Duration("uptime", exit.At.Sub(h.started)),
	}
	if exit.Solicited {
		logger.Info("daemon exited", logging.Args(append(attrs, logging.String(logging.FieldEventType, "daemon_exited"))...)...)
	} else {
		logging.WarnWithContext(logger, "daemon exited unexpectedly", "daemon_crashed", append(attrs,
			logging.String(logging.FieldErrorHint, "inspect the daemon output above for the cause"),
			logging.String(logging.FieldImpact, "node leaves the ready state"),
		)...)
	}

	for _, fn := range s.handlers {
		fn(exit)
	}
}

// Stop asks h to exit with an interrupt and waits up to timeout before
// killing its process group. A forced kill is still a successful stop.
// Stopping an exited handle is a no-op.
func (s *Supervisor) Stop(ctx context.Context, h *Handle, timeout time.Duration) (StopResult, error) {
	if h == nil {
		return StopResult{AlreadyExited: true}, nil
	}
	result := StopResult{Role: h.role, PID: h.pid}
	if !h.Alive() {
		result.AlreadyExited = true
		return result, nil
	}
	started := time.Now()
	h.stopping.Store(true)
	logger := s.logger.With(logging.String(logging.FieldRole, string(h.role)))

	if err := interrupt(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Debug("interrupt failed; escalating", logging.Error(err))
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-h.done:
			result.Elapsed = time.Since(started)
			return result, nil
		case <-timer.C:
			logging.WarnWithContext(logger, "graceful stop exceeded deadline; killing", "daemon_stop_timeout",
				logging.Int("pid", h.pid),
				logging.Duration("timeout", timeout),
				logging.Error(ErrStopTimedOut),
				logging.String(logging.FieldErrorHint, "raise supervisor.stop_timeout_seconds if the daemon needs longer to shut down"),
				logging.String(logging.FieldImpact, "daemon was force-killed"),
			)
		case <-ctx.Done():
			logging.WarnWithContext(logger, "stop abandoned by caller; killing", "daemon_stop_cancelled",
				logging.Int("pid", h.pid),
				logging.Duration("waited", time.Since(started)),
				logging.Error(context.Cause(ctx)),
				logging.String(logging.FieldErrorHint, "the shutdown budget ran out before the daemon exited"),
				logging.String(logging.FieldImpact, "daemon was force-killed before its graceful window ended"),
			)
		}
	}

	result.Forced = true
	if err := forceKill(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Debug("kill returned error", logging.Error(err))
	}
	select {
	case <-h.done:
	case <-time.After(s.killWait):
		return result, fmt.Errorf("%w: %s (pid %d)", ErrKillFailed, h.role, h.pid)
	}
	result.Elapsed = time.Since(started)
	return result, nil
}

// StopBudget is the longest Stop can take for one process given timeout.
func (s *Supervisor) StopBudget(timeout time.Duration) time.Duration {
	return timeout + s.killWait
}

// StopRole stops the live handle registered for role, if any.
func (s *Supervisor) StopRole(ctx context.Context, role Role, timeout time.Duration) (StopResult, error) {
	h, ok := s.Handle(role)
	if !ok {
		return StopResult{Role: role, AlreadyExited: true}, nil
	}
	return s.Stop(ctx, h, timeout)
}

// Handle returns the live handle for role.
func (s *Supervisor) Handle(role Role) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[role]
	return h, ok
}

// Handles returns the live handles ordered by role.
func (s *Supervisor) Handles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b *Handle) int {
		switch {
		case a.role < b.role:
			return -1
		case a.role > b.role:
			return 1
		}
		return 0
	})
	return out
}

// Close stops every live handle and waits for all reapers to finish.
func (s *Supervisor) Close(ctx context.Context, timeout time.Duration) error {
	var errs []error
	for _, h := range s.Handles() {
		if _, err := s.Stop(ctx, h, timeout); err != nil {
			errs = append(errs, err)
		}
	}
	s.reapers.Wait()
	return errors.Join(errs...)
}

func resolveExecutable(path string) (string, error) {
	if path == "" {
		return "", errors.New("empty executable path")
	}
	if filepath.Base(path) == path {
		return exec.LookPath(path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}
