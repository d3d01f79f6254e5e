// Package policy defines the guardrail policy a session enforces: which
// paths the agent may touch, which commands are off-limits, and how large
// the change set is allowed to grow.
//
// A Policy is built once at session start and never mutated afterwards.
// Matching follows deny-overrides-allow: a path matching any forbidden
// glob is forbidden even if it also matches an allowed glob.
package policy

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/shopspring/decimal"
)

// Action is the configured response to a detected violation.
type Action string

const (
	// ActionStop terminates the agent and ends the session.
	ActionStop Action = "stop"
	// ActionWarn records the violation and lets the session continue.
	ActionWarn Action = "warn"
	// ActionCheckpointAndContinue records the violation; the checkpoint
	// preceding detection already captured the offending state.
	ActionCheckpointAndContinue Action = "checkpoint_and_continue"
)

// ParseAction maps a config string to an Action. Unrecognized or empty
// values fall back to ActionStop so a typo never weakens enforcement.
func ParseAction(s string) Action {
	switch Action(strings.TrimSpace(s)) {
	case ActionStop, ActionWarn, ActionCheckpointAndContinue:
		return Action(strings.TrimSpace(s))
	default:
		return ActionStop
	}
}

// Policy is the immutable guardrail configuration for one session.
type Policy struct {
	// AllowedPaths are globs the agent is permitted to change. Empty
	// means every path is allowed unless forbidden.
	AllowedPaths []string

	// ForbiddenPaths are globs the agent must never change. A forbidden
	// match always wins over an allowed match.
	ForbiddenPaths []string

	// ForbiddenCommands are case-sensitive substrings that must not
	// appear in the agent's command log.
	ForbiddenCommands []string

	// MaxFilesChanged caps the number of files changed since the session
	// base revision. Zero means no file may change.
	MaxFilesChanged int

	// MaxLinesChanged caps total insertions plus deletions since the
	// session base revision.
	MaxLinesChanged int

	// MaxCostUSD is the configured spend ceiling. Stored and surfaced for
	// external metering; the engine does not account spend itself.
	MaxCostUSD decimal.Decimal

	// OnViolation selects the session's response to any violation.
	OnViolation Action
}

// Default returns the conservative built-in policy used when no guardrail
// configuration is present. The engine never runs unguarded: secret-shaped
// paths are denied and limits are large but finite.
func Default() *Policy {
	return &Policy{
		ForbiddenPaths: []string{
			"**/*.pem",
			"**/*.key",
			"**/.env",
			"**/.env.*",
			"**/id_rsa*",
			"**/credentials*",
			"secrets/**",
		},
		MaxFilesChanged: 10000,
		MaxLinesChanged: 1000000,
		MaxCostUSD:      decimal.NewFromInt(100),
		OnViolation:     ActionStop,
	}
}

// Validate checks that every glob parses and every limit is non-negative.
func (p *Policy) Validate() error {
	for _, g := range p.AllowedPaths {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("invalid allowed path glob %q", g)
		}
	}
	for _, g := range p.ForbiddenPaths {
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("invalid forbidden path glob %q", g)
		}
	}
	if p.MaxFilesChanged < 0 {
		return fmt.Errorf("max_files_changed must be non-negative, got %d", p.MaxFilesChanged)
	}
	if p.MaxLinesChanged < 0 {
		return fmt.Errorf("max_lines_changed must be non-negative, got %d", p.MaxLinesChanged)
	}
	if p.MaxCostUSD.IsNegative() {
		return fmt.Errorf("max_cost_usd must be non-negative, got %s", p.MaxCostUSD)
	}
	switch p.OnViolation {
	case ActionStop, ActionWarn, ActionCheckpointAndContinue:
	default:
		return fmt.Errorf("unknown on_violation action %q", p.OnViolation)
	}
	return nil
}

// MatchesForbidden reports whether path is outside the agent's blast
// radius. A forbidden glob match always forbids the path; otherwise, when
// an allowlist is configured, any path matching no allowed glob is also
// forbidden.
func (p *Policy) MatchesForbidden(path string) bool {
	path = strings.TrimPrefix(path, "./")
	for _, g := range p.ForbiddenPaths {
		if matchGlob(g, path) {
			return true
		}
	}
	if len(p.AllowedPaths) == 0 {
		return false
	}
	for _, g := range p.AllowedPaths {
		if matchGlob(g, path) {
			return false
		}
	}
	return true
}

// MatchesForbiddenCommand reports whether text contains any forbidden
// command substring. Matching is case-sensitive containment.
func (p *Policy) MatchesForbiddenCommand(text string) bool {
	for _, sub := range p.ForbiddenCommands {
		if sub != "" && strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// matchGlob matches path against a doublestar glob. Patterns ending in
// "/**" also match the directory itself, mirroring gitignore expectations.
func matchGlob(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	if err != nil {
		// Validate rejects bad patterns at load; an error here means the
		// policy was constructed without Validate. Fail closed.
		return true
	}
	if ok {
		return true
	}
	if dir, found := strings.CutSuffix(pattern, "/**"); found && path == dir {
		return true
	}
	return false
}
