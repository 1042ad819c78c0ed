package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-isatty"
)

// Options configures console logging.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string
	// Output defaults to stderr.
	Output io.Writer
	// Timestamps prefixes every line with the time.
	Timestamps bool
	// JSON switches to machine-readable lines.
	JSON bool
}

// Logger writes leveled progress and diagnostic lines to the console. A nil
// Logger discards everything.
type Logger struct {
	hc hclog.Logger
}

// New builds a console logger named "refbundle".
func New(opts Options) (*Logger, error) {
	level := hclog.Info
	if trimmed := strings.TrimSpace(opts.Level); trimmed != "" {
		level = hclog.LevelFromString(trimmed)
		if level == hclog.NoLevel {
			return nil, fmt.Errorf("logging: unknown level %q", opts.Level)
		}
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hc := hclog.New(&hclog.LoggerOptions{
		Name:        "refbundle",
		Level:       level,
		Output:      out,
		DisableTime: !opts.Timestamps,
		JSONFormat:  opts.JSON,
		Color:       colorFor(out),
	})
	return &Logger{hc: hc}, nil
}

// Named returns a sub-logger whose lines carry name.
func (l *Logger) Named(name string) *Logger {
	if l == nil || l.hc == nil {
		return l
	}
	return &Logger{hc: l.hc.Named(name)}
}

// Printf writes a single info line.
func (l *Logger) Printf(format string, args ...any) {
	l.Info(format, args...)
}

// Debug writes a debug line.
func (l *Logger) Debug(format string, args ...any) {
	if l == nil || l.hc == nil {
		return
	}
	l.hc.Debug(line(format, args...))
}

// Info writes an info line.
func (l *Logger) Info(format string, args ...any) {
	if l == nil || l.hc == nil {
		return
	}
	l.hc.Info(line(format, args...))
}

// Warn writes a warning line.
func (l *Logger) Warn(format string, args ...any) {
	if l == nil || l.hc == nil {
		return
	}
	l.hc.Warn(line(format, args...))
}

// Error writes an error line.
func (l *Logger) Error(format string, args ...any) {
	if l == nil || l.hc == nil {
		return
	}
	l.hc.Error(line(format, args...))
}

// colorFor enables color only for terminals; hclog cannot colorize other
// writers.
func colorFor(out io.Writer) hclog.ColorOption {
	if f, ok := out.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return hclog.ForceColor
	}
	return hclog.ColorOff
}

func line(format string, args ...any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
