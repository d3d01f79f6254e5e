package agent

import "context"

// Built-in agent kinds. Each adapter only decides the launch argv; the
// shared exec runner handles the pty, output teeing, and termination.

const (
	// KindClaudeCode launches the Claude Code CLI in non-interactive mode.
	KindClaudeCode = "claude-code"
	// KindCursor launches the Cursor agent CLI.
	KindCursor = "cursor"
	// KindCustom launches an operator-supplied command.
	KindCustom = "custom"
)

//nolint:gochecknoinits // Agent self-registration is the intended pattern.
func init() {
	Register(KindClaudeCode, func() Adapter { return claudeCodeAdapter{} })
	Register(KindCursor, func() Adapter { return cursorAdapter{} })
	Register(KindCustom, func() Adapter { return customAdapter{} })
}

type claudeCodeAdapter struct{}

func (claudeCodeAdapter) Kind() string { return KindClaudeCode }

func (a claudeCodeAdapter) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	argv := []string{"claude", "--print", "--permission-mode", "acceptEdits", opts.Task}
	return startProcess(ctx, a.Kind(), argv, opts)
}

type cursorAdapter struct{}

func (cursorAdapter) Kind() string { return KindCursor }

func (a cursorAdapter) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	argv := []string{"cursor-agent", "--print", opts.Task}
	return startProcess(ctx, a.Kind(), argv, opts)
}

type customAdapter struct{}

func (customAdapter) Kind() string { return KindCustom }

func (a customAdapter) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	return startProcess(ctx, a.Kind(), opts.Command, opts)
}
