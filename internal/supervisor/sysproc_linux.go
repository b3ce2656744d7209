//go:build linux

package supervisor

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureChild puts the daemon in its own process group and asks the kernel
// to SIGKILL it when the spawning thread dies. The runtime only retires a
// thread whose goroutine exits while locked to it, which Start never does.
func configureChild(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: unix.SIGKILL,
	}
}

func interrupt(p *os.Process) error {
	return unix.Kill(p.Pid, unix.SIGINT)
}

// forceKill kills the daemon's whole process group so exe-unit children go too.
func forceKill(p *os.Process) error {
	if err := unix.Kill(-p.Pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return p.Kill()
	}
	return nil
}
