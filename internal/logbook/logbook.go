// Package logbook keeps a persistent, append-only record of bundle runs so a
// run's warnings can be inspected after the console output is gone.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook persists bundle progress and diagnostics to a text file.
type Logbook struct {
	path string
	fs   afero.Fs
	now  func() time.Time
	mu   sync.Mutex
}

// Option customizes a Logbook during construction.
type Option func(*Logbook)

// WithFs overrides the filesystem the logbook writes to.
func WithFs(fsys afero.Fs) Option {
	return func(l *Logbook) {
		if fsys != nil {
			l.fs = fsys
		}
	}
}

// WithClock overrides the clock used for entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Logbook) {
		if clock != nil {
			l.now = clock
		}
	}
}

// New creates a logbook that writes to the provided path.
func New(path string, opts ...Option) (*Logbook, error) {
	l := &Logbook{path: path, fs: afero.NewOsFs(), now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: ensure dir: %w", err)
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook. Multi-line messages are kept on
// one entry line each, prefixed like the first.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	stamp := l.now().UTC().Format(time.RFC3339)
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(message), "\n") {
		fmt.Fprintf(&b, "%s %-5s %s\n", stamp, string(level), strings.TrimRight(line, " \t"))
	}
	file, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(b.String())
}

// Tail returns up to maxLines of the most recent entries and the total number
// of lines in the logbook.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := l.fs.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if total > maxLines {
		lines = lines[total-maxLines:]
	}
	return lines, total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
