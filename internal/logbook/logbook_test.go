package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/kingrea/refbundle/internal/diag"
)

var _ diag.Reporter = (*Logbook)(nil)

func TestTailReturnsRecentLinesAndTotal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "bundle.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines, total := book.Tail(3)
	if total != 5 {
		t.Fatalf("total lines = %d, want 5", total)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendFormatsLevelsAndSplitsLines(t *testing.T) {
	fsys := afero.NewMemMapFs()
	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	book, err := New("/logs/bundle.log", WithFs(fsys), WithClock(clock))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	book.Warn("cycle at %s", "./a.yaml")
	book.Error("two\nlines")

	lines, total := book.Tail(10)
	if total != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", total, lines)
	}
	want := []string{
		"2024-05-01T12:00:00Z WARN  cycle at ./a.yaml",
		"2024-05-01T12:00:00Z ERROR two",
		"2024-05-01T12:00:00Z ERROR lines",
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestNilLogbookIsInert(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	if lines, total := book.Tail(5); lines != nil || total != 0 {
		t.Fatalf("expected nil logbook to return nothing")
	}
	if book.Path() != "" {
		t.Fatalf("expected empty path")
	}
}
