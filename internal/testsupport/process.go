package testsupport

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

const helperEnv = "YANODE_HELPER_PROCESS"

// Helper process modes.
const (
	// HelperGraceful exits 0 on the first interrupt.
	HelperGraceful = "graceful"
	// HelperStubborn ignores interrupts and only dies to a kill.
	HelperStubborn = "stubborn"
	// HelperExit exits immediately with the code given as its argument.
	HelperExit = "exit"
)

// HelperCommand returns the executable and arguments that re-run the current
// test binary as a fake daemon in the given mode. The package under test must
// define TestHelperProcess calling RunHelperProcess, and the child needs
// YANODE_HELPER_PROCESS=1 in its environment (see HelperEnv).
func HelperCommand(mode string, extra ...string) (string, []string) {
	args := append([]string{"-test.run=^TestHelperProcess$", "--", mode}, extra...)
	return os.Args[0], args
}

// HelperEnv returns the current environment plus the helper switch.
func HelperEnv() []string {
	return append(os.Environ(), helperEnv+"=1")
}

// EnableHelperEnv sets the helper switch in the test process environment so
// children built from os.Environ inherit it.
func EnableHelperEnv(t testing.TB) {
	t.Helper()
	t.Setenv(helperEnv, "1")
}

// RunHelperProcess turns the test binary into a fake daemon when invoked by
// HelperCommand. In a normal test run it returns immediately.
//
// Arguments after the mode: graceful and stubborn accept a marker file path
// written once signal handling is installed; exit accepts an exit code.
func RunHelperProcess() {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(3)
	}
	mode, rest := args[0], args[1:]
	switch mode {
	case HelperGraceful:
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt)
		touch(rest)
		fmt.Println("helper ready")
		<-sig
		fmt.Println("helper interrupted")
		os.Exit(0)
	case HelperStubborn:
		signal.Ignore(os.Interrupt)
		touch(rest)
		for {
			time.Sleep(time.Hour)
		}
	case HelperExit:
		code := 0
		if len(rest) > 0 {
			code, _ = strconv.Atoi(rest[0])
		}
		fmt.Fprintln(os.Stderr, "helper exiting")
		os.Exit(code)
	}
	os.Exit(3)
}

func touch(rest []string) {
	if len(rest) == 0 || rest[0] == "" {
		return
	}
	_ = os.WriteFile(rest[0], []byte("ready"), 0o644)
}

// MarkerPath returns a fresh marker file path in a temp dir.
func MarkerPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "helper.ready")
}

// WaitForFile blocks until path exists or fails the test after timeout.
func WaitForFile(t testing.TB, path string, timeout time.Duration) {
	t.Helper()
	Eventually(t, timeout, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, "file %s never appeared", path)
}

// Eventually polls cond every 10ms until it holds or timeout expires.
func Eventually(t testing.TB, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf(format, args...)
		case <-tick.C:
		}
	}
}
