package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// termGrace is how long Terminate waits after SIGTERM before killing.
const termGrace = 5 * time.Second

// execHandle runs an agent as a subprocess, teeing its output into the
// command log. When stdout is a terminal the process runs under a pty so
// interactive agents behave normally; otherwise plain pipes are used.
type execHandle struct {
	kind string
	cmd  *exec.Cmd
	done chan error

	termOnce sync.Once
	termErr  error
}

// startProcess launches argv in opts.Workdir and begins streaming output.
func startProcess(ctx context.Context, kind string, argv []string, opts StartOptions) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: kind, Err: err}
	}
	if len(argv) == 0 {
		return nil, &Error{Kind: kind, Err: fmt.Errorf("empty launch command")}
	}

	logFile, err := os.OpenFile(opts.CommandLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &Error{Kind: kind, Err: fmt.Errorf("failed to open command log: %w", err)}
	}
	fmt.Fprintf(logFile, "$ %s\n", shellJoin(argv))

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // Argv is operator-configured.
	cmd.Dir = opts.Workdir
	cmd.Env = os.Environ()

	h := &execHandle{kind: kind, cmd: cmd, done: make(chan error, 1)}

	var output io.ReadCloser
	if term.IsTerminal(int(os.Stdout.Fd())) {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			logFile.Close()
			return nil, &Error{Kind: kind, Err: fmt.Errorf("failed to start under pty: %w", err)}
		}
		output = ptmx
	} else {
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			logFile.Close()
			return nil, &Error{Kind: kind, Err: err}
		}
		cmd.Stderr = cmd.Stdout
		if err := cmd.Start(); err != nil {
			logFile.Close()
			return nil, &Error{Kind: kind, Err: fmt.Errorf("failed to start: %w", err)}
		}
		output = stdout
	}

	go func() {
		defer logFile.Close()
		// Tee agent output to the operator's terminal and the command log.
		// The pty read returning EIO on process exit is expected.
		_, _ = io.Copy(io.MultiWriter(os.Stdout, logFile), output)
		output.Close()

		err := cmd.Wait()
		if err != nil {
			err = &Error{Kind: kind, Err: err}
		}
		h.done <- err
		close(h.done)
	}()

	return h, nil
}

func (h *execHandle) Done() <-chan error { return h.done }

// Terminate sends SIGTERM and escalates to SIGKILL after a grace period.
func (h *execHandle) Terminate() error {
	h.termOnce.Do(func() {
		proc := h.cmd.Process
		if proc == nil {
			return
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			h.termErr = proc.Kill()
			return
		}
		select {
		case <-h.done:
		case <-time.After(termGrace):
			h.termErr = proc.Kill()
		}
	})
	return h.termErr
}

// shellJoin renders argv for the command log; quoting is cosmetic only.
func shellJoin(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		if a == "" || containsSpace(a) {
			out += "\"" + a + "\""
		} else {
			out += a
		}
	}
	return out
}

func containsSpace(s string) bool {
	for _, r := range s {
		if r == ' ' || r == '\t' {
			return true
		}
	}
	return false
}
