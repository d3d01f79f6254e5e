// Package warden wraps the warden binary for end-to-end tests.
package warden

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var (
	binOnce sync.Once
	binPath string
	binErr  error
)

// BinPath resolves the warden binary under test. WARDEN_E2E_BIN takes
// precedence; otherwise the binary is built from source into a temp dir
// once per test run.
func BinPath() string {
	binOnce.Do(func() {
		if p := os.Getenv("WARDEN_E2E_BIN"); p != "" {
			binPath = p
			return
		}
		_, file, _, _ := runtime.Caller(0)
		root := filepath.Join(filepath.Dir(file), "..", "..")

		dir, err := os.MkdirTemp("", "warden-e2e-bin-*")
		if err != nil {
			binErr = err
			return
		}
		out := filepath.Join(dir, "warden")
		cmd := exec.Command("go", "build", "-o", out, "./cmd/warden")
		cmd.Dir = root
		if buildOut, err := cmd.CombinedOutput(); err != nil {
			binErr = &ExecError{Args: []string{"build"}, Err: err, Output: string(buildOut)}
			return
		}
		binPath = out
	})
	if binErr != nil {
		panic(binErr)
	}
	return binPath
}

// Run executes a warden subcommand in dir and fails the test on error.
func Run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := RunErr(dir, args...)
	if err != nil {
		t.Fatalf("warden %s failed: %v", strings.Join(args, " "), err)
	}
	return out
}

// RunErr executes a warden subcommand in dir and returns its combined
// output plus any error. For callers testing failure cases.
func RunErr(dir string, args ...string) (string, error) {
	cmd := exec.Command(BinPath(), args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), &ExecError{Args: args, Err: err, Output: string(out)}
	}
	return strings.TrimSpace(string(out)), nil
}

// ExecError wraps a warden CLI execution failure with its output.
type ExecError struct {
	Args   []string
	Err    error
	Output string
}

func (e *ExecError) Error() string {
	return "warden " + strings.Join(e.Args, " ") + ": " + e.Err.Error() + "\n" + e.Output
}

func (e *ExecError) Unwrap() error {
	return e.Err
}
