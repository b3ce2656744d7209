// Package deps reports whether the external executables a node runs are
// installed.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement defines an external executable yanode relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands containing a path separator must exist and be executable; bare
// names are looked up on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if err := lookup(cmd); err != nil {
			status.Detail = err.Error()
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

func lookup(cmd string) error {
	if !strings.ContainsRune(cmd, os.PathSeparator) {
		if _, err := exec.LookPath(cmd); err != nil {
			return fmt.Errorf("binary %q not found on PATH", cmd)
		}
		return nil
	}
	info, err := os.Stat(cmd)
	switch {
	case err != nil:
		return fmt.Errorf("binary %q not found", cmd)
	case info.IsDir():
		return fmt.Errorf("%q is a directory", cmd)
	case info.Mode()&0o111 == 0:
		return fmt.Errorf("binary %q is not executable", cmd)
	}
	return nil
}
