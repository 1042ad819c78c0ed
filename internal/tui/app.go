// Package tui shows bundling progress in the terminal with bubbletea.
//
// The App runs each job in a tea.Cmd, one after another, while a spinner marks
// the job in flight. Finished jobs are rendered with RenderOutcome, the same
// summary the plain CLI prints.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/refbundle/internal/bundler"
	"github.com/kingrea/refbundle/internal/logbook"
)

const logPanelLines = 8

// Job is one input/output pair to bundle.
type Job struct {
	Input  string
	Output string
}

// RunFunc bundles one job. Bundler.Run fits it once check mode is bound.
type RunFunc func(ctx context.Context, input, output string) (*bundler.Outcome, error)

// Finished is the result of one job.
type Finished struct {
	Job     Job
	Outcome *bundler.Outcome
	Err     error
}

type jobFinishedMsg struct {
	index   int
	outcome *bundler.Outcome
	err     error
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithLogbook shows the tail of lb under the job list.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = lb
	}
}

// App is the bubbletea model for a bundling session.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   []Job
	run    RunFunc

	logbook  *logbook.Logbook
	spinner  spinner.Model
	finished []Finished
	done     bool
	aborted  bool
	width    int
}

// NewApp prepares a session that runs jobs in order.
func NewApp(ctx context.Context, jobs []Job, run RunFunc, opts ...AppOption) *App {
	ctx, cancel := context.WithCancel(ctx)
	a := &App{
		ctx:     ctx,
		cancel:  cancel,
		jobs:    jobs,
		run:     run,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(lipgloss.NewStyle().Foreground(colorAccent))),
		done:    len(jobs) == 0,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Results returns what has finished so far, in job order.
func (a *App) Results() []Finished {
	return append([]Finished(nil), a.finished...)
}

// Aborted reports whether the user quit before every job finished.
func (a *App) Aborted() bool {
	return a.aborted
}

// Init starts the spinner and the first job.
func (a *App) Init() tea.Cmd {
	if a.done {
		return nil
	}
	return tea.Batch(a.spinner.Tick, a.runJob(0))
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a.quit()
		case "q", "esc", "enter":
			if a.done {
				return a.quit()
			}
		}
		return a, nil

	case jobFinishedMsg:
		job := a.jobs[msg.index]
		a.finished = append(a.finished, Finished{Job: job, Outcome: msg.outcome, Err: msg.err})
		if msg.err != nil {
			a.logError("%s: %v", job.Input, msg.err)
		}
		if next := msg.index + 1; next < len(a.jobs) && a.ctx.Err() == nil {
			return a, a.runJob(next)
		}
		a.done = true
		return a, nil

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) quit() (tea.Model, tea.Cmd) {
	if !a.done {
		a.aborted = true
	}
	a.cancel()
	return a, tea.Quit
}

func (a *App) runJob(index int) tea.Cmd {
	job := a.jobs[index]
	ctx := a.ctx
	run := a.run
	return func() tea.Msg {
		outcome, err := run(ctx, job.Input, job.Output)
		return jobFinishedMsg{index: index, outcome: outcome, err: err}
	}
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// View renders the job list, the log panel and a footer hint.
func (a *App) View() string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorError).
		MarginBottom(1).
		Render("⬡ REFBUNDLE")

	var rows []string
	for i, job := range a.jobs {
		switch {
		case i < len(a.finished):
			rows = append(rows, a.renderFinished(a.finished[i]))
		case i == len(a.finished) && !a.done:
			rows = append(rows, fmt.Sprintf("%s bundling %s", a.spinner.View(), job.Input))
		default:
			rows = append(rows, mutedStyle.Render("  "+job.Input))
		}
	}
	if len(a.jobs) == 0 {
		rows = append(rows, mutedStyle.Render("Nothing to bundle."))
	}

	parts := []string{header, strings.Join(rows, "\n")}
	if panel := a.renderLogPanel(); panel != "" {
		parts = append(parts, "", panel)
	}
	hint := "ctrl+c to cancel"
	if a.done {
		hint = "q to quit"
	}
	parts = append(parts, "", mutedStyle.Render(hint))
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}

func (a *App) renderFinished(f Finished) string {
	if f.Err != nil {
		return RenderFailure(f.Job.Input, f.Err)
	}
	return RenderOutcome(f.Outcome)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logPanelLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorAccent).
		Render(fmt.Sprintf("LOG · %s (%d lines)", fileName, total))
	body := mutedStyle.Render(strings.Join(lines, "\n"))
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1)
	if a.width > 4 {
		style = style.Width(a.width - 4)
	}
	return style.Render(fmt.Sprintf("%s\n%s", head, body))
}
