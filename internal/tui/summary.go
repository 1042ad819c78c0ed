package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/refbundle/internal/artifact"
	"github.com/kingrea/refbundle/internal/bundler"
	"github.com/kingrea/refbundle/internal/diag"
)

var (
	colorAccent = lipgloss.Color("#5B8DEF")
	colorOK     = lipgloss.Color("#6BCB77")
	colorWarn   = lipgloss.Color("#F4D35E")
	colorError  = lipgloss.Color("#FF6B6B")
	colorMuted  = lipgloss.Color("#AAAAAA")

	okStyle    = lipgloss.NewStyle().Foreground(colorOK)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle = lipgloss.NewStyle().Foreground(colorError)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

// RenderOutcome summarizes one finished bundle: a status line followed by its
// warnings and errors, and the diff of a stale check.
func RenderOutcome(o *bundler.Outcome) string {
	if o == nil || o.Result == nil {
		return ""
	}
	var lines []string
	lines = append(lines, statusLine(o))
	for _, d := range o.Result.Diagnostics {
		switch d.Severity {
		case diag.SeverityError:
			lines = append(lines, "  "+errorStyle.Render("error   ")+d.Error())
		case diag.SeverityWarning:
			lines = append(lines, "  "+warnStyle.Render("warning ")+d.Error())
		}
	}
	if o.Check != nil && o.Check.Diff != "" {
		lines = append(lines, mutedStyle.Render(indent(strings.TrimRight(o.Check.Diff, "\n"), "    ")))
	}
	return strings.Join(lines, "\n")
}

// RenderFailure summarizes a bundle that could not be produced.
func RenderFailure(input string, err error) string {
	return errorStyle.Render("✗ ") + fmt.Sprintf("%s: %v", input, err)
}

func statusLine(o *bundler.Outcome) string {
	stats := o.Result.Stats
	counts := fmt.Sprintf("(%d resolved, %d unresolved, %d cycles)", stats.Resolved, stats.Unresolved, stats.Cycles)
	if o.Check != nil {
		switch o.Check.State {
		case artifact.StateFresh:
			return okStyle.Render("✓ ") + fmt.Sprintf("%s is up to date %s", o.Output, counts)
		case artifact.StateMissing:
			return warnStyle.Render("! ") + fmt.Sprintf("%s does not exist %s", o.Output, counts)
		default:
			return warnStyle.Render("! ") + fmt.Sprintf("%s is out of date %s", o.Output, counts)
		}
	}
	if o.Result.Partial() {
		return warnStyle.Render("! ") + fmt.Sprintf("%s written with unresolved references %s", o.Output, counts)
	}
	return okStyle.Render("✓ ") + fmt.Sprintf("%s written %s", o.Output, counts)
}

func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
