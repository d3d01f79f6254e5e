package detect

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// maxScanSize bounds how much of a file the secret scanner reads. Files
// larger than this are scanned only over their first maxScanSize bytes.
const maxScanSize = 1 << 20

// Fixed secret-shaped assignment patterns. These catch the common
// key=value style leaks regardless of the token format.
var assignmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd)\s*[:=]\s*['"]?[^\s'"]{6,}`),
	regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*['"]?[A-Za-z0-9_\-/+=]{8,}`),
	regexp.MustCompile(`(?i)secret\s*[:=]\s*['"]?[A-Za-z0-9_\-/+=]{8,}`),
}

// secretScanner applies the fixed assignment patterns, then the gitleaks
// default ruleset for known credential-prefix tokens (AWS keys, GitHub
// PATs, Slack tokens, and so on).
type secretScanner struct {
	workdir string
	leaks   *detect.Detector
}

// newSecretScanner builds the scanner. A gitleaks init failure leaves the
// fixed patterns active and is surfaced to the caller as a non-fatal error.
func newSecretScanner(workdir string) (*secretScanner, error) {
	s := &secretScanner{workdir: workdir}
	leaks, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return s, fmt.Errorf("failed to load credential ruleset: %w", err)
	}
	s.leaks = leaks
	return s, nil
}

// scanFile reads path (relative to the working directory) and returns a
// description of the first secret-shaped match, if any. Missing and
// binary files are skipped.
func (s *secretScanner) scanFile(path string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(s.workdir, path)) //nolint:gosec // Paths come from the change inspector.
	if err != nil {
		return "", false
	}
	if len(data) > maxScanSize {
		data = data[:maxScanSize]
	}
	if !utf8.Valid(data) {
		return "", false
	}
	content := string(data)

	for _, re := range assignmentPatterns {
		if loc := re.FindStringIndex(content); loc != nil {
			return "potential secret assignment near " + excerpt(content, loc[0]), true
		}
	}

	if s.leaks != nil {
		findings := s.leaks.DetectString(content)
		if len(findings) > 0 {
			return "potential credential token (" + findings[0].RuleID + ")", true
		}
	}
	return "", false
}

// excerpt returns the start of the line containing offset, truncated so
// the secret value itself is not echoed into the ledger.
func excerpt(content string, offset int) string {
	start := strings.LastIndexByte(content[:offset], '\n') + 1
	line := content[start:]
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if i := strings.IndexAny(line, ":="); i >= 0 {
		line = line[:i+1] + "…"
	}
	if len(line) > 80 {
		line = line[:80] + "…"
	}
	return strings.TrimSpace(line)
}

func formatLimit(what string, got, limit int) string {
	return fmt.Sprintf("%s %d exceeds limit %d", what, got, limit)
}

// logLines splits the command log into non-empty lines.
func logLines(commandLog string) []string {
	var out []string
	for _, line := range strings.Split(commandLog, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
