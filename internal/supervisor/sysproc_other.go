//go:build !linux

package supervisor

import (
	"os"
	"os/exec"
)

func configureChild(*exec.Cmd) {}

func interrupt(p *os.Process) error {
	return p.Signal(os.Interrupt)
}

func forceKill(p *os.Process) error {
	return p.Kill()
}
