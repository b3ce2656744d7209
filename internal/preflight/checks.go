package preflight

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/sys/unix"

	"yanode/internal/config"
	"yanode/internal/deps"
)

var accountPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPaymentAccount reports whether the configured receiving account is a
// well-formed address. An empty account falls back to the node identity.
func CheckPaymentAccount(account string) Result {
	const name = "Payment account"
	account = strings.TrimSpace(account)
	switch {
	case account == "":
		return Result{Name: name, Passed: true, Optional: true, Detail: "node identity"}
	case accountPattern.MatchString(account):
		return Result{Name: name, Passed: true, Detail: account}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("%q is not a 0x-prefixed 20-byte address", account)}
	}
}

// CheckSystemDeps evaluates the daemon executables for the given config.
// Both the daemon and the CLI status command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "yagna",
			Command:     cfg.YagnaBinary(),
			Description: "Network, identity and payment daemon",
		},
		{
			Name:        "ya-provider",
			Command:     cfg.ProviderBinary(),
			Description: "Workload provider daemon",
		},
	}
	return deps.CheckBinaries(requirements)
}
