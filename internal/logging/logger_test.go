package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kingrea/refbundle/internal/diag"
)

var _ diag.Reporter = (*Logger)(nil)

func TestLoggerWritesLeveledLines(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Printf("reading %s\n", "openapi.yaml")
	log.Warn("cycle")
	log.Named("resolver").Error("missing %d", 2)
	log.Debug("detail")

	out := buf.String()
	for _, want := range []string{
		"[INFO]  refbundle: reading openapi.yaml",
		"[WARN]  refbundle: cycle",
		"[ERROR] refbundle.resolver: missing 2",
		"[DEBUG] refbundle: detail",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNilLoggerIsInert(t *testing.T) {
	var log *Logger
	log.Printf("ignored")
	log.Warn("ignored")
	if log.Named("x") != nil {
		t.Fatalf("expected nil named logger")
	}
}
