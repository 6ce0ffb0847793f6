package reconciler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"symsync/internal/activity"
	"symsync/internal/api"
)

type fixture struct {
	t      *testing.T
	base   string
	cfg    api.LinkConfig
	log    *activity.Log
	rec    *Reconciler
	prev   *State
	metric *Metrics
}

func newFixture(t *testing.T, sources ...string) *fixture {
	t.Helper()
	base := t.TempDir()
	cfg := api.LinkConfig{ID: "link-1", Target: filepath.Join(base, "T")}
	for _, s := range sources {
		dir := filepath.Join(base, s)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		cfg.Sources = append(cfg.Sources, dir)
	}
	if err := os.MkdirAll(cfg.Target, 0o755); err != nil {
		t.Fatal(err)
	}
	log := activity.NewLog(cfg.ID, 0)
	metrics := NewMetrics()
	return &fixture{
		t:      t,
		base:   base,
		cfg:    cfg,
		log:    log,
		metric: metrics,
		rec:    New(cfg.ID, nil, nil, log, metrics),
	}
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.base}, parts...)...)
}

func (f *fixture) write(parts ...string) {
	f.t.Helper()
	p := f.path(parts...)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(p), 0o644); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) pass() Report {
	f.t.Helper()
	report, err := f.rec.Reconcile(context.Background(), f.cfg, f.prev)
	if err != nil {
		f.t.Fatalf("Reconcile() error = %v", err)
	}
	f.prev = report.State
	return report
}

func (f *fixture) linkDest(name string) string {
	f.t.Helper()
	dest, err := os.Readlink(f.path("T", name))
	if err != nil {
		f.t.Fatalf("Readlink(%s) error = %v", name, err)
	}
	return dest
}

func (f *fixture) kinds() map[api.ActivityKind]int {
	out := make(map[api.ActivityKind]int)
	for _, e := range f.log.Entries() {
		out[e.Kind]++
	}
	return out
}

func TestReconcile_TwoSourceScenario(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.write("A", "x")
	f.write("B", "x")
	f.write("B", "y")

	report := f.pass()

	if report.Added != 2 || report.Conflicted != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %s", report)
	}
	if got := f.linkDest("x"); got != f.path("A", "x") {
		t.Errorf("x -> %s, want %s", got, f.path("A", "x"))
	}
	if got := f.linkDest("y"); got != f.path("B", "y") {
		t.Errorf("y -> %s, want %s", got, f.path("B", "y"))
	}

	conflicts := 0
	for _, e := range f.log.Entries() {
		if e.Kind == api.ActivityConflicted {
			conflicts++
			if e.Path != f.path("B", "x") {
				t.Errorf("conflict path = %s, want %s", e.Path, f.path("B", "x"))
			}
		}
	}
	if conflicts != 1 {
		t.Errorf("conflict entries = %d, want 1", conflicts)
	}

	// Deleting A/x moves the name to B/x.
	if err := os.Remove(f.path("A", "x")); err != nil {
		t.Fatal(err)
	}
	report = f.pass()
	if report.Repaired != 1 {
		t.Errorf("Repaired = %d, want 1 (%s)", report.Repaired, report)
	}
	if got := f.linkDest("x"); got != f.path("B", "x") {
		t.Errorf("x -> %s, want %s", got, f.path("B", "x"))
	}
	if report.Conflicted != 0 {
		t.Errorf("Conflicted = %d, want 0", report.Conflicted)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "one")
	f.write("A", "two")
	if err := os.MkdirAll(f.path("A", "dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	first := f.pass()
	if first.Added != 3 {
		t.Fatalf("Added = %d, want 3", first.Added)
	}
	logged := len(f.log.Entries())

	second := f.pass()
	if second.Changed() || second.Failed != 0 {
		t.Errorf("second pass changed something: %s", second)
	}
	if n := len(f.log.Entries()); n != logged {
		t.Errorf("second pass logged %d new entries", n-logged)
	}
	linked := 0
	for _, e := range second.State.Entries {
		if e.Status == api.EntryLinked {
			linked++
		}
	}
	if linked != 3 {
		t.Errorf("linked entries = %d, want 3", linked)
	}
}

func TestReconcile_RecoversDeletedLink(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "doc.txt")
	f.pass()

	if err := os.Remove(f.path("T", "doc.txt")); err != nil {
		t.Fatal(err)
	}
	report := f.pass()
	if report.Added != 1 {
		t.Errorf("Added = %d, want 1", report.Added)
	}
	if got := f.linkDest("doc.txt"); got != f.path("A", "doc.txt") {
		t.Errorf("doc.txt -> %s", got)
	}
}

func TestReconcile_RemovesOnlyOwnLinks(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "gone")
	f.write("A", "stays")
	f.write("T", "user-file")
	other := f.path("elsewhere")
	if err := os.MkdirAll(other, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(other, f.path("T", "foreign-link")); err != nil {
		t.Fatal(err)
	}
	f.pass()

	if err := os.Remove(f.path("A", "gone")); err != nil {
		t.Fatal(err)
	}
	report := f.pass()
	if report.Removed != 1 {
		t.Errorf("Removed = %d, want 1", report.Removed)
	}
	if _, err := os.Lstat(f.path("T", "gone")); !os.IsNotExist(err) {
		t.Errorf("T/gone still present: %v", err)
	}
	for _, keep := range []string{"stays", "user-file", "foreign-link"} {
		if _, err := os.Lstat(f.path("T", keep)); err != nil {
			t.Errorf("T/%s was touched: %v", keep, err)
		}
	}
}

func TestReconcile_LinkAndSourceBothGoneIsNotARemoval(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "gone")
	f.pass()

	for _, p := range []string{f.path("A", "gone"), f.path("T", "gone")} {
		if err := os.Remove(p); err != nil {
			t.Fatal(err)
		}
	}
	before := f.kinds()[api.ActivityRemoved]
	report := f.pass()
	if report.Removed != 0 || report.Failed != 0 {
		t.Errorf("report = %s, want no removals", report)
	}
	if got := f.kinds()[api.ActivityRemoved]; got != before {
		t.Errorf("Removed entries = %d, want %d", got, before)
	}
	if _, owned := f.rec.manifest["gone"]; owned {
		t.Error("manifest still lists gone")
	}
}

func TestReconcile_ForeignDataIsConflictLoggedOnce(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "notes")
	f.write("T", "notes")

	for i := 0; i < 3; i++ {
		report := f.pass()
		if report.Conflicted != 1 || report.Added != 0 {
			t.Fatalf("pass %d: %s", i, report)
		}
	}
	if got := f.kinds()[api.ActivityConflicted]; got != 1 {
		t.Errorf("conflict entries = %d, want 1", got)
	}
	data, err := os.ReadFile(f.path("T", "notes"))
	if err != nil || string(data) != f.path("T", "notes") {
		t.Errorf("target file modified: %q, %v", data, err)
	}
}

func TestReconcile_RepairsBrokenLink(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "x")
	f.pass()

	if err := os.Remove(f.path("T", "x")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(f.path("nowhere"), f.path("T", "x")); err != nil {
		t.Fatal(err)
	}

	report := f.pass()
	if report.Repaired != 1 {
		t.Errorf("Repaired = %d, want 1", report.Repaired)
	}
	if got := f.linkDest("x"); got != f.path("A", "x") {
		t.Errorf("x -> %s", got)
	}
}

func TestReconcile_MissingTargetIsFatal(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "x")
	if err := os.RemoveAll(f.cfg.Target); err != nil {
		t.Fatal(err)
	}

	_, err := f.rec.Reconcile(context.Background(), f.cfg, nil)
	if !api.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if v, _ := f.metric.GetLinkMetrics(f.cfg.ID); v.Failures != 1 {
		t.Errorf("Failures = %d, want 1", v.Failures)
	}
}

func TestReconcile_UnreadableRootKeepsLinks(t *testing.T) {
	f := newFixture(t, "A", "B")
	f.write("A", "a")
	f.write("B", "b")
	f.pass()

	if err := os.Rename(f.path("B"), f.path("B-away")); err != nil {
		t.Fatal(err)
	}
	report := f.pass()
	if report.Removed != 0 {
		t.Errorf("Removed = %d, want 0", report.Removed)
	}
	if _, err := os.Lstat(f.path("T", "b")); err != nil {
		t.Errorf("T/b removed while its root was unreadable: %v", err)
	}
	if got := f.kinds()[api.ActivityWarning]; got != 1 {
		t.Errorf("warning entries = %d, want 1", got)
	}
}

func TestReconcile_RenameIsRemoveAndAdd(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "old")
	f.pass()

	if err := os.Rename(f.path("A", "old"), f.path("A", "new")); err != nil {
		t.Fatal(err)
	}
	report := f.pass()
	if report.Removed != 1 || report.Added != 1 {
		t.Errorf("rename report: %s", report)
	}
}

func TestAdoptAndTeardown(t *testing.T) {
	f := newFixture(t, "A")
	f.write("A", "x")
	f.write("A", "y")
	f.write("T", "mine-not")
	f.pass()

	// A fresh reconciler knows nothing until it adopts.
	fresh := New(f.cfg.ID, nil, nil, f.log, nil)
	n, err := fresh.Adopt(f.cfg)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Adopt() = %d, want 2", n)
	}

	removed, err := fresh.Teardown(f.cfg)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("Teardown() = %d, want 2", removed)
	}
	entries, _ := os.ReadDir(f.cfg.Target)
	if len(entries) != 1 || entries[0].Name() != "mine-not" {
		t.Errorf("target after teardown: %v", entries)
	}
	if _, err := os.Stat(f.path("A", "x")); err != nil {
		t.Errorf("source removed by teardown: %v", err)
	}
}

func TestEnsureTarget(t *testing.T) {
	f := newFixture(t, "A")
	cfg := f.cfg
	cfg.Target = f.path("new", "target")

	created, err := f.rec.EnsureTarget(cfg)
	if err != nil || !created {
		t.Fatalf("EnsureTarget() = %v, %v", created, err)
	}
	created, err = f.rec.EnsureTarget(cfg)
	if err != nil || created {
		t.Errorf("second EnsureTarget() = %v, %v", created, err)
	}

	f.write("file-target")
	cfg.Target = f.path("file-target")
	if _, err := f.rec.EnsureTarget(cfg); !api.IsFatal(err) {
		t.Errorf("expected fatal error for file target, got %v", err)
	}
}
