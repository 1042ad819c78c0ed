// Package diag carries the warnings and errors raised while bundling, and the
// reporters they are delivered to.
package diag

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns a human-readable severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Code identifies the kind of problem a diagnostic describes.
type Code string

const (
	CodeCycle               Code = "cycle"
	CodeNotFound            Code = "not-found"
	CodeParse               Code = "parse"
	CodeInvalidReference    Code = "invalid-reference"
	CodeFragmentIgnored     Code = "fragment-ignored"
	CodeUnsupportedFragment Code = "unsupported-fragment"
	CodeLoad                Code = "load"
)

// Diagnostic describes one reference that needed attention. It implements
// error so error-severity diagnostics can be aggregated directly.
type Diagnostic struct {
	Severity Severity
	Code     Code
	// File is the document that contains the reference.
	File string
	// Ref is the reference string as written.
	Ref string
	// Target is the absolute path the reference resolved to, if any.
	Target string
	// Chain lists the documents being expanded when the diagnostic was raised,
	// root first.
	Chain   []string
	Message string
	Err     error
}

func (d Diagnostic) Error() string {
	var b strings.Builder
	b.WriteString(string(d.Code))
	if d.Ref != "" {
		fmt.Fprintf(&b, ": %s", d.Ref)
	}
	if d.File != "" {
		fmt.Fprintf(&b, " in %s", d.File)
	}
	if d.Message != "" {
		fmt.Fprintf(&b, ": %s", d.Message)
	}
	if len(d.Chain) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(d.Chain, " -> "))
	}
	return b.String()
}

func (d Diagnostic) Unwrap() error { return d.Err }

// Reporter receives human-readable progress and diagnostic lines.
type Reporter interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Emit routes d to r according to its severity.
func Emit(r Reporter, d Diagnostic) {
	if r == nil {
		return
	}
	switch d.Severity {
	case SeverityError:
		r.Error("%s", d.Error())
	case SeverityWarning:
		r.Warn("%s", d.Error())
	default:
		r.Info("%s", d.Error())
	}
}

type tee []Reporter

// Tee fans every line out to each non-nil reporter.
func Tee(reporters ...Reporter) Reporter {
	var out tee
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (t tee) Info(format string, args ...any) {
	for _, r := range t {
		r.Info(format, args...)
	}
}

func (t tee) Warn(format string, args ...any) {
	for _, r := range t {
		r.Warn(format, args...)
	}
}

func (t tee) Error(format string, args ...any) {
	for _, r := range t {
		r.Error(format, args...)
	}
}

// Discard drops everything.
type Discard struct{}

func (Discard) Info(string, ...any)  {}
func (Discard) Warn(string, ...any)  {}
func (Discard) Error(string, ...any) {}

// List collects diagnostics. It is safe for concurrent use.
type List struct {
	mu    sync.Mutex
	items []Diagnostic
}

// Add appends d.
func (l *List) Add(d Diagnostic) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, d)
}

// Items returns a copy of every diagnostic in insertion order.
func (l *List) Items() []Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Diagnostic(nil), l.items...)
}

// Filter returns diagnostics with the given severity.
func (l *List) Filter(severity Severity) []Diagnostic {
	var out []Diagnostic
	for _, d := range l.Items() {
		if d.Severity == severity {
			out = append(out, d)
		}
	}
	return out
}

// Errors returns error-severity diagnostics.
func (l *List) Errors() []Diagnostic { return l.Filter(SeverityError) }

// Err combines every error-severity diagnostic, or returns nil when there are
// none.
func (l *List) Err() error {
	var result *multierror.Error
	for _, d := range l.Errors() {
		result = multierror.Append(result, d)
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = listFormat
	return result.ErrorOrNil()
}

func listFormat(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	lines := make([]string, 0, len(errs))
	for _, err := range errs {
		lines = append(lines, "  * "+err.Error())
	}
	return fmt.Sprintf("%d references could not be resolved:\n%s", len(errs), strings.Join(lines, "\n"))
}
