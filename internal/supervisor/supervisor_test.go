package supervisor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"yanode/internal/logging"
	"yanode/internal/supervisor"
	"yanode/internal/testsupport"
)

func TestHelperProcess(t *testing.T) {
	testsupport.RunHelperProcess()
}

type exitRecorder struct {
	mu    sync.Mutex
	exits []supervisor.Exit
}

func (r *exitRecorder) record(e supervisor.Exit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, e)
}

func (r *exitRecorder) snapshot() []supervisor.Exit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]supervisor.Exit(nil), r.exits...)
}

func helperSpec(role supervisor.Role, mode string, extra ...string) supervisor.Spec {
	path, args := testsupport.HelperCommand(mode, extra...)
	return supervisor.Spec{Role: role, Path: path, Args: args, Env: testsupport.HelperEnv()}
}

func TestStartAndGracefulStop(t *testing.T) {
	rec := &exitRecorder{}
	sup := supervisor.New(logging.NewNop(), supervisor.WithExitHandler(rec.record))
	marker := testsupport.MarkerPath(t)

	h, err := sup.Start(context.Background(), helperSpec(supervisor.RoleYagna, testsupport.HelperGraceful, marker))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h.PID() <= 0 || !h.Alive() {
		t.Fatalf("expected live handle, pid=%d", h.PID())
	}
	if got, ok := sup.Handle(supervisor.RoleYagna); !ok || got != h {
		t.Fatal("expected handle registered under role")
	}
	testsupport.WaitForFile(t, marker, 10*time.Second)

	res, err := sup.Stop(context.Background(), h, 5*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Forced || res.AlreadyExited {
		t.Fatalf("expected graceful stop, got %+v", res)
	}
	exit, ok := h.Exit()
	if !ok || exit.Code != 0 || !exit.Solicited {
		t.Fatalf("unexpected exit %+v ok=%v", exit, ok)
	}
	testsupport.Eventually(t, 2*time.Second, func() bool { return len(rec.snapshot()) == 1 }, "exit handler not called")
	if _, ok := sup.Handle(supervisor.RoleYagna); ok {
		t.Fatal("expected handle discarded after exit")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	sup := supervisor.New(logging.NewNop())
	marker := testsupport.MarkerPath(t)

	h, err := sup.Start(context.Background(), helperSpec(supervisor.RoleProvider, testsupport.HelperStubborn, marker))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	testsupport.WaitForFile(t, marker, 10*time.Second)

	started := time.Now()
	res, err := sup.Stop(context.Background(), h, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Stop should succeed after forced kill: %v", err)
	}
	if !res.Forced {
		t.Fatalf("expected forced stop, got %+v", res)
	}
	if elapsed := time.Since(started); elapsed < 200*time.Millisecond {
		t.Fatalf("kill happened before the deadline: %s", elapsed)
	}
	if h.Alive() {
		t.Fatal("expected process reaped")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	sup := supervisor.New(logging.NewNop())
	h, err := sup.Start(context.Background(), helperSpec(supervisor.RoleYagna, testsupport.HelperExit, "0"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("helper did not exit")
	}
	for i := 0; i < 2; i++ {
		res, err := sup.Stop(context.Background(), h, time.Second)
		if err != nil || !res.AlreadyExited {
			t.Fatalf("stop %d: res=%+v err=%v", i, res, err)
		}
	}
	if _, err := sup.StopRole(context.Background(), supervisor.RoleYagna, time.Second); err != nil {
		t.Fatalf("StopRole on missing role: %v", err)
	}
}

func TestUnsolicitedExitReportedOnce(t *testing.T) {
	rec := &exitRecorder{}
	sup := supervisor.New(logging.NewNop(), supervisor.WithExitHandler(rec.record))
	h, err := sup.Start(context.Background(), helperSpec(supervisor.RoleProvider, testsupport.HelperExit, "7"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-h.Done()
	testsupport.Eventually(t, 2*time.Second, func() bool { return len(rec.snapshot()) >= 1 }, "exit handler not called")
	time.Sleep(50 * time.Millisecond)

	exits := rec.snapshot()
	if len(exits) != 1 {
		t.Fatalf("expected exactly one exit notification, got %d", len(exits))
	}
	if exits[0].Solicited || exits[0].Code != 7 || exits[0].Role != supervisor.RoleProvider {
		t.Fatalf("unexpected exit %+v", exits[0])
	}
}

func TestStartMissingExecutable(t *testing.T) {
	sup := supervisor.New(logging.NewNop())
	_, err := sup.Start(context.Background(), supervisor.Spec{
		Role: supervisor.RoleYagna,
		Path: filepath.Join(t.TempDir(), "yagna"),
	})
	if !errors.Is(err, supervisor.ErrSpawnFailed) {
		t.Fatalf("expected ErrSpawnFailed, got %v", err)
	}
	if len(sup.Handles()) != 0 {
		t.Fatal("expected no handle after spawn failure")
	}
}

func TestStartRejectsSecondLiveHandleForRole(t *testing.T) {
	sup := supervisor.New(logging.NewNop())
	marker := testsupport.MarkerPath(t)
	h, err := sup.Start(context.Background(), helperSpec(supervisor.RoleYagna, testsupport.HelperGraceful, marker))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _, _ = sup.Stop(context.Background(), h, 5*time.Second) })

	if _, err := sup.Start(context.Background(), helperSpec(supervisor.RoleYagna, testsupport.HelperGraceful)); !errors.Is(err, supervisor.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	sup := supervisor.New(logging.NewNop())
	markers := []string{testsupport.MarkerPath(t), testsupport.MarkerPath(t)}
	for i, role := range []supervisor.Role{supervisor.RoleYagna, supervisor.RoleProvider} {
		if _, err := sup.Start(context.Background(), helperSpec(role, testsupport.HelperGraceful, markers[i])); err != nil {
			t.Fatalf("Start %s: %v", role, err)
		}
	}
	for _, m := range markers {
		testsupport.WaitForFile(t, m, 10*time.Second)
	}
	if err := sup.Close(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(sup.Handles()); n != 0 {
		t.Fatalf("expected no live handles, got %d", n)
	}
}

func TestStopWithCancelledContextLogsCancellation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "supervisor.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	sup := supervisor.New(logger)
	marker := testsupport.MarkerPath(t)
	h, err := sup.Start(context.Background(), helperSpec(supervisor.RoleYagna, testsupport.HelperGraceful, marker))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	testsupport.WaitForFile(t, marker, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := sup.Stop(ctx, h, 30*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !res.Forced {
		t.Fatalf("expected cancelled stop to escalate, got %+v", res)
	}
	if res.Elapsed >= 30*time.Second {
		t.Fatalf("cancelled stop waited out the graceful window: %s", res.Elapsed)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "daemon_stop_cancelled") {
		t.Fatalf("expected cancellation event in log:\n%s", out)
	}
	if strings.Contains(out, "daemon_stop_timeout") {
		t.Fatalf("cancellation logged as a timeout:\n%s", out)
	}
}

func TestStopBudgetIncludesKillWait(t *testing.T) {
	if got := supervisor.New(logging.NewNop()).StopBudget(30 * time.Second); got != 35*time.Second {
		t.Fatalf("default budget = %s, want 35s", got)
	}
	if got := supervisor.New(logging.NewNop(), supervisor.WithKillWait(time.Second)).StopBudget(2 * time.Second); got != 3*time.Second {
		t.Fatalf("budget = %s, want 3s", got)
	}
}
