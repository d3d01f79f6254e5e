// Package detect evaluates a guardrail policy against the observed state
// of a session: changed files, the agent's command log, and on-disk file
// contents.
//
// Detection runs in a fixed order so reports are stable across cycles:
// forbidden paths, forbidden commands, potential secrets, then the
// file/line limits. The detector itself is stateless; command-report
// idempotence lives in the ReportedCommands set the caller owns and
// passes back in on every cycle.
package detect

import (
	"time"

	"github.com/wardenhq/warden/cmd/warden/cli/inspect"
	"github.com/wardenhq/warden/cmd/warden/cli/policy"
)

// Kind classifies a violation.
type Kind string

const (
	// KindForbiddenPath is a change to a path the policy denies.
	KindForbiddenPath Kind = "FORBIDDEN_PATH"
	// KindForbiddenCommand is a forbidden substring in the command log.
	KindForbiddenCommand Kind = "FORBIDDEN_COMMAND"
	// KindPotentialSecret is secret-shaped content in a changed file.
	KindPotentialSecret Kind = "POTENTIAL_SECRET"
	// KindFileLimit is the files-changed cap being exceeded.
	KindFileLimit Kind = "FILE_LIMIT"
	// KindLineLimit is the lines-changed cap being exceeded.
	KindLineLimit Kind = "LINE_LIMIT"
)

// Violation is one detected policy breach. Violations are write-once
// facts: appended to the ledger and never mutated.
type Violation struct {
	Kind       Kind      `json:"kind"`
	Detail     string    `json:"detail"`
	File       string    `json:"file,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// ReportedCommands tracks command-log lines already reported, keyed by
// the exact matched text. Re-running detection over an unchanged log with
// the same set never duplicates FORBIDDEN_COMMAND violations.
type ReportedCommands map[string]struct{}

// Detector evaluates one policy. Create it once per session.
type Detector struct {
	policy  *policy.Policy
	secrets *secretScanner
}

// New builds a Detector for p. Files are read relative to workdir when
// scanning for secrets. The returned error reports a degraded secret
// ruleset (the credential-token detector failed to load); the Detector is
// still usable and callers should log and continue.
func New(p *policy.Policy, workdir string) (*Detector, error) {
	scanner, err := newSecretScanner(workdir)
	return &Detector{policy: p, secrets: scanner}, err
}

// Detect runs one evaluation cycle and returns the ordered violations.
// snap must be the aggregate since the session base revision, commandLog
// is the full command stream so far, and reported is mutated to record
// newly reported command matches.
func (d *Detector) Detect(snap *inspect.Snapshot, commandLog string, reported ReportedCommands) []Violation {
	now := time.Now()
	var out []Violation

	out = append(out, d.forbiddenPaths(snap, now)...)
	out = append(out, d.forbiddenCommands(commandLog, reported, now)...)
	out = append(out, d.potentialSecrets(snap, now)...)
	out = append(out, d.limits(snap, now)...)
	return out
}

func (d *Detector) forbiddenPaths(snap *inspect.Snapshot, now time.Time) []Violation {
	var out []Violation
	for _, fc := range snap.Changes {
		if d.policy.MatchesForbidden(fc.Path) {
			out = append(out, Violation{
				Kind:       KindForbiddenPath,
				Detail:     string(fc.Action) + " forbidden path " + fc.Path,
				File:       fc.Path,
				DetectedAt: now,
			})
		}
	}
	return out
}

func (d *Detector) forbiddenCommands(commandLog string, reported ReportedCommands, now time.Time) []Violation {
	var out []Violation
	for _, line := range logLines(commandLog) {
		if !d.policy.MatchesForbiddenCommand(line) {
			continue
		}
		if _, seen := reported[line]; seen {
			continue
		}
		reported[line] = struct{}{}
		out = append(out, Violation{
			Kind:       KindForbiddenCommand,
			Detail:     "forbidden command: " + line,
			DetectedAt: now,
		})
	}
	return out
}

func (d *Detector) potentialSecrets(snap *inspect.Snapshot, now time.Time) []Violation {
	if d.secrets == nil {
		return nil
	}
	var out []Violation
	for _, fc := range snap.Changes {
		if fc.Action == inspect.ActionDeleted {
			continue
		}
		// First match wins; at most one secret violation per file per cycle.
		if detail, found := d.secrets.scanFile(fc.Path); found {
			out = append(out, Violation{
				Kind:       KindPotentialSecret,
				Detail:     detail,
				File:       fc.Path,
				DetectedAt: now,
			})
		}
	}
	return out
}

func (d *Detector) limits(snap *inspect.Snapshot, now time.Time) []Violation {
	var out []Violation
	if snap.FilesChanged > d.policy.MaxFilesChanged {
		out = append(out, Violation{
			Kind:       KindFileLimit,
			Detail:     formatLimit("files changed", snap.FilesChanged, d.policy.MaxFilesChanged),
			DetectedAt: now,
		})
	}
	if snap.LinesChanged > d.policy.MaxLinesChanged {
		out = append(out, Violation{
			Kind:       KindLineLimit,
			Detail:     formatLimit("lines changed", snap.LinesChanged, d.policy.MaxLinesChanged),
			DetectedAt: now,
		})
	}
	return out
}
