package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/cmd/warden/cli/inspect"
	"github.com/wardenhq/warden/cmd/warden/cli/policy"
)

func newDetector(t *testing.T, p *policy.Policy, workdir string) *Detector {
	t.Helper()
	require.NoError(t, p.Validate())
	d, err := New(p, workdir)
	if err != nil {
		t.Logf("secret ruleset degraded: %v", err)
	}
	return d
}

func snapshot(changes ...inspect.FileChange) *inspect.Snapshot {
	snap := &inspect.Snapshot{Changes: changes, FilesChanged: len(changes)}
	return snap
}

func kinds(violations []Violation) []Kind {
	out := make([]Kind, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Kind)
	}
	return out
}

func TestDetect_ForbiddenPath(t *testing.T) {
	p := &policy.Policy{
		ForbiddenPaths:  []string{"secrets/**"},
		MaxFilesChanged: 100,
		MaxLinesChanged: 100,
		OnViolation:     policy.ActionStop,
	}
	d := newDetector(t, p, t.TempDir())

	snap := snapshot(
		inspect.FileChange{Path: "src/main.go", Action: inspect.ActionModified},
		inspect.FileChange{Path: "secrets/key.pem", Action: inspect.ActionCreated},
	)

	got := d.Detect(snap, "", ReportedCommands{})
	require.Len(t, got, 1)
	assert.Equal(t, KindForbiddenPath, got[0].Kind)
	assert.Equal(t, "secrets/key.pem", got[0].File)
	assert.Contains(t, got[0].Detail, "secrets/key.pem")
}

func TestDetect_ForbiddenPathReportedEveryCycle(t *testing.T) {
	p := &policy.Policy{
		ForbiddenPaths:  []string{"*.pem"},
		MaxFilesChanged: 100,
		MaxLinesChanged: 100,
		OnViolation:     policy.ActionStop,
	}
	d := newDetector(t, p, t.TempDir())
	snap := snapshot(inspect.FileChange{Path: "cert.pem", Action: inspect.ActionCreated})
	reported := ReportedCommands{}

	// Path violations restate current state: they repeat while the file
	// stays changed, unlike command reports.
	first := d.Detect(snap, "", reported)
	second := d.Detect(snap, "", reported)
	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
}

func TestDetect_ForbiddenCommandIdempotent(t *testing.T) {
	p := &policy.Policy{
		ForbiddenCommands: []string{"rm -rf"},
		MaxFilesChanged:   100,
		MaxLinesChanged:   100,
		OnViolation:       policy.ActionStop,
	}
	d := newDetector(t, p, t.TempDir())
	log := "$ ls -la\n$ rm -rf /tmp/build\n"
	reported := ReportedCommands{}

	first := d.Detect(snapshot(), log, reported)
	require.Len(t, first, 1)
	assert.Equal(t, KindForbiddenCommand, first[0].Kind)

	// Same log, same set: already-reported line must not repeat.
	second := d.Detect(snapshot(), log, reported)
	assert.Empty(t, second)

	// A new matching line is still reported.
	third := d.Detect(snapshot(), log+"$ rm -rf /tmp/cache\n", reported)
	require.Len(t, third, 1)
	assert.Contains(t, third[0].Detail, "/tmp/cache")
}

func TestDetect_PotentialSecretInChangedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"),
		[]byte("DEBUG=true\npassword = hunter22\n"), 0o600))

	p := &policy.Policy{MaxFilesChanged: 100, MaxLinesChanged: 100, OnViolation: policy.ActionStop}
	d := newDetector(t, p, dir)

	snap := snapshot(inspect.FileChange{Path: "app.env", Action: inspect.ActionModified})
	got := d.Detect(snap, "", ReportedCommands{})
	require.Len(t, got, 1)
	assert.Equal(t, KindPotentialSecret, got[0].Kind)
	assert.Equal(t, "app.env", got[0].File)
	assert.NotContains(t, got[0].Detail, "hunter22", "secret value must not leak into the report")
}

func TestDetect_OneSecretViolationPerFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf.ini"),
		[]byte("password=abcdef1\napi_key=ABCDEF123456\nsecret=ZYXWVU987654\n"), 0o600))

	p := &policy.Policy{MaxFilesChanged: 100, MaxLinesChanged: 100, OnViolation: policy.ActionStop}
	d := newDetector(t, p, dir)

	got := d.Detect(snapshot(inspect.FileChange{Path: "conf.ini", Action: inspect.ActionModified}), "", ReportedCommands{})
	assert.Len(t, got, 1)
}

func TestDetect_SkipsDeletedAndBinaryFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob.bin"),
		[]byte{0xff, 0xfe, 0x00, 0x01, 'p', 'a', 's', 's', 'w', 'o', 'r', 'd', '=', 'x', 'y', 'z', 'z', 'y', '1'}, 0o600))

	p := &policy.Policy{MaxFilesChanged: 100, MaxLinesChanged: 100, OnViolation: policy.ActionStop}
	d := newDetector(t, p, dir)

	snap := snapshot(
		inspect.FileChange{Path: "gone.env", Action: inspect.ActionDeleted},
		inspect.FileChange{Path: "blob.bin", Action: inspect.ActionModified},
		inspect.FileChange{Path: "missing.txt", Action: inspect.ActionModified},
	)
	got := d.Detect(snap, "", ReportedCommands{})
	assert.Empty(t, kinds(got))
}

func TestDetect_FileLimitStrictlyGreater(t *testing.T) {
	p := &policy.Policy{MaxFilesChanged: 2, MaxLinesChanged: 100, OnViolation: policy.ActionStop}
	d := newDetector(t, p, t.TempDir())

	at := &inspect.Snapshot{FilesChanged: 2}
	assert.Empty(t, d.Detect(at, "", ReportedCommands{}), "at the limit is not a violation")

	over := &inspect.Snapshot{FilesChanged: 3}
	got := d.Detect(over, "", ReportedCommands{})
	require.Len(t, got, 1)
	assert.Equal(t, KindFileLimit, got[0].Kind)
	assert.Equal(t, "files changed 3 exceeds limit 2", got[0].Detail)
}

func TestDetect_LineLimit(t *testing.T) {
	p := &policy.Policy{MaxFilesChanged: 100, MaxLinesChanged: 50, OnViolation: policy.ActionStop}
	d := newDetector(t, p, t.TempDir())

	got := d.Detect(&inspect.Snapshot{FilesChanged: 1, LinesChanged: 51}, "", ReportedCommands{})
	require.Len(t, got, 1)
	assert.Equal(t, KindLineLimit, got[0].Kind)
}

func TestDetect_FixedReportOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leak.txt"),
		[]byte("api_key=ABCDEF123456\n"), 0o600))

	p := &policy.Policy{
		ForbiddenPaths:    []string{"vendor/**"},
		ForbiddenCommands: []string{"curl"},
		MaxFilesChanged:   1,
		MaxLinesChanged:   1,
		OnViolation:       policy.ActionStop,
	}
	d := newDetector(t, p, dir)

	snap := &inspect.Snapshot{
		Changes: []inspect.FileChange{
			{Path: "vendor/dep.go", Action: inspect.ActionModified},
			{Path: "leak.txt", Action: inspect.ActionCreated},
		},
		FilesChanged: 2,
		LinesChanged: 9,
	}
	got := d.Detect(snap, "$ curl http://evil.example\n", ReportedCommands{})

	want := []Kind{KindForbiddenPath, KindForbiddenCommand, KindPotentialSecret, KindFileLimit, KindLineLimit}
	assert.Equal(t, want, kinds(got))
}

func TestExcerpt_TruncatesValue(t *testing.T) {
	line := "password = supersecretvalue"
	got := excerpt("# header\n"+line+"\ntrailer\n", len("# header\n")+3)
	assert.NotContains(t, got, "supersecretvalue")
	assert.Contains(t, got, "password")
}
