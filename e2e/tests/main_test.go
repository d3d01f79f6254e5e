//go:build e2e

package tests

import (
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/wardenhq/warden/e2e/warden"
)

func TestMain(m *testing.M) {
	// Preflight: verify required binaries before running any tests.
	if _, err := exec.LookPath("git"); err != nil {
		fmt.Fprintln(os.Stderr, "preflight: git not found in PATH")
		os.Exit(1)
	}

	// Resolve the warden binary (builds from source if WARDEN_E2E_BIN is unset).
	bin := warden.BinPath()
	fmt.Fprintf(os.Stderr, "warden binary: %s\n", bin)

	// Don't look at the user's git config; oddball ~/.gitconfig settings
	// must not affect fixture repos.
	os.Setenv("GIT_CONFIG_GLOBAL", "/dev/null")

	os.Exit(m.Run())
}
