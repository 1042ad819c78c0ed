// Command refbundle inlines every relative $ref in a YAML or JSON document and
// writes one self-contained document.
//
// Usage:
//
//	refbundle [flags] [root ...]
//
// Without arguments the bundles listed in .refbundle.yaml are built, or
// openapi.yaml in the project directory when there is no such list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/kingrea/refbundle/internal/bundler"
	"github.com/kingrea/refbundle/internal/config"
	"github.com/kingrea/refbundle/internal/diag"
	"github.com/kingrea/refbundle/internal/document"
	"github.com/kingrea/refbundle/internal/logbook"
	"github.com/kingrea/refbundle/internal/logging"
	"github.com/kingrea/refbundle/internal/resolver"
	"github.com/kingrea/refbundle/internal/tui"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
	exitStale   = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	projectDir string
	configFile string
	output     string
	refKey     string
	fragments  string
	format     string
	logFile    string
	logLevel   string
	parallel   int
	tail       int
	strict     bool
	check      bool
	useTUI     bool
	quiet      bool
	initConfig bool
	set        map[string]bool
	roots      []string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("refbundle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := &options{set: map[string]bool{}}
	fs.StringVar(&opts.projectDir, "project", "", "project directory holding .refbundle.yaml (defaults to cwd)")
	fs.StringVar(&opts.configFile, "config", "", "path to a refbundle config file")
	fs.StringVar(&opts.output, "o", "", "output path (defaults to <stem>-bundled<ext> next to the root)")
	fs.StringVar(&opts.refKey, "ref-key", document.DefaultRefKey, "mapping key that marks a reference")
	fs.StringVar(&opts.fragments, "fragments", string(resolver.FragmentIgnore), "fragment handling: ignore or reject")
	fs.StringVar(&opts.format, "format", "auto", "output format: auto, yaml or json")
	fs.StringVar(&opts.logFile, "log-file", "", "append progress and diagnostics to this file")
	fs.StringVar(&opts.logLevel, "log-level", "info", "console log level: trace, debug, info, warn or error")
	fs.IntVar(&opts.parallel, "parallel", 1, "sibling references resolved concurrently per node")
	fs.IntVar(&opts.tail, "tail", 0, "print the last N log file lines when done")
	fs.BoolVar(&opts.strict, "strict", false, "fail on the first unresolvable reference")
	fs.BoolVar(&opts.check, "check", false, "compare with the existing output instead of writing it")
	fs.BoolVar(&opts.useTUI, "tui", false, "show progress in an interactive terminal view")
	fs.BoolVar(&opts.quiet, "quiet", false, "only log warnings and errors")
	fs.BoolVar(&opts.initConfig, "init", false, "write a starter "+config.FileName+" and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })
	opts.roots = fs.Args()
	if opts.output != "" && len(opts.roots) > 1 {
		return nil, fmt.Errorf("-o needs exactly one root, got %d", len(opts.roots))
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitFatal
	}

	project := opts.projectDir
	if project == "" {
		project, err = os.Getwd()
		if err != nil {
			return fail(stderr, "determine working directory: %v", err)
		}
	}
	if opts.initConfig {
		path, err := config.Write(nil, project)
		if err != nil {
			return fail(stderr, "%v", err)
		}
		fmt.Fprintf(stdout, "Created %s\n", path)
		return exitOK
	}

	cfg, err := config.Load(project, opts.configFile)
	if err != nil {
		return fail(stderr, "load config: %v", err)
	}
	if err := applyOverrides(cfg, opts); err != nil {
		return fail(stderr, "%v", err)
	}

	level := opts.logLevel
	if opts.quiet && !opts.set["log-level"] {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{Level: level, Output: stderr})
	if err != nil {
		return fail(stderr, "%v", err)
	}
	var lb *logbook.Logbook
	if path := cfg.LogFile(); path != "" {
		lb, err = logbook.New(path)
		if err != nil {
			return fail(stderr, "%v", err)
		}
	}
	if opts.tail > 0 && lb == nil {
		logger.Warn("-tail needs a log file (-log-file or project.log_file in %s), nothing to show", config.FileName)
	}

	targets, err := selectTargets(cfg, opts)
	if err != nil {
		return fail(stderr, "%v", err)
	}

	interactive := opts.useTUI && isTerminal(stdout)
	if opts.useTUI && !interactive {
		logger.Warn("-tui needs a terminal, falling back to plain output")
	}
	reporters := []diag.Reporter{}
	if !interactive {
		reporters = append(reporters, logger)
	}
	if lb != nil {
		reporters = append(reporters, lb)
	}
	store := document.NewStore()
	runTarget := func(ctx context.Context, t config.Target) (*bundler.Outcome, error) {
		b := bundler.New(
			bundler.WithStore(store),
			bundler.WithResolverOptions(cfg.ResolverOptions()...),
			bundler.WithReporter(diag.Tee(reporters...)),
			bundler.WithFormat(t.Format),
		)
		return b.Run(ctx, t.Input, t.Output, opts.check)
	}

	var finished []tui.Finished
	if interactive {
		finished, err = runInteractive(ctx, targets, runTarget, lb, stdout)
		if err != nil {
			return fail(stderr, "run tui: %v", err)
		}
	} else {
		for _, t := range targets {
			outcome, err := runTarget(ctx, t)
			finished = append(finished, tui.Finished{Job: tui.Job{Input: t.Input, Output: t.Output}, Outcome: outcome, Err: err})
			if err != nil {
				logger.Error("%s: %v", t.Input, err)
				if lb != nil {
					lb.Error("%s: %v", t.Input, err)
				}
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	for _, f := range finished {
		if f.Err != nil {
			fmt.Fprintln(stdout, tui.RenderFailure(f.Job.Input, f.Err))
			continue
		}
		fmt.Fprintln(stdout, tui.RenderOutcome(f.Outcome))
	}
	if opts.tail > 0 && lb != nil {
		lines, total := lb.Tail(opts.tail)
		fmt.Fprintf(stdout, "\n%s (%d of %d lines)\n", lb.Path(), len(lines), total)
		for _, line := range lines {
			fmt.Fprintln(stdout, line)
		}
	}
	if len(finished) < len(targets) {
		return exitFatal
	}
	return exitCode(finished)
}

func runInteractive(ctx context.Context, targets []config.Target, runTarget func(context.Context, config.Target) (*bundler.Outcome, error), lb *logbook.Logbook, stdout io.Writer) ([]tui.Finished, error) {
	jobs := make([]tui.Job, len(targets))
	byInput := make(map[string]config.Target, len(targets))
	for i, t := range targets {
		jobs[i] = tui.Job{Input: t.Input, Output: t.Output}
		byInput[t.Input] = t
	}
	app := tui.NewApp(ctx, jobs, func(ctx context.Context, input, _ string) (*bundler.Outcome, error) {
		return runTarget(ctx, byInput[input])
	}, tui.WithLogbook(lb))
	p := tea.NewProgram(app, tea.WithOutput(stdout), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return app.Results(), err
	}
	return app.Results(), nil
}

// applyOverrides lets explicitly set flags win over the config file.
func applyOverrides(cfg *config.Config, opts *options) error {
	if opts.set["ref-key"] {
		if strings.TrimSpace(opts.refKey) == "" {
			return fmt.Errorf("-ref-key must not be blank")
		}
		cfg.Project.RefKey = opts.refKey
	}
	if opts.strict {
		cfg.Project.Mode = string(resolver.ModeStrict)
	}
	if opts.set["fragments"] {
		if _, err := resolver.ParseFragmentPolicy(opts.fragments); err != nil {
			return err
		}
		cfg.Project.Fragments = opts.fragments
	}
	if opts.set["format"] {
		if _, _, err := document.ParseFormat(opts.format); err != nil {
			return err
		}
		cfg.Project.Format = opts.format
	}
	if opts.set["parallel"] {
		if opts.parallel < 1 {
			return fmt.Errorf("-parallel must be >= 1")
		}
		cfg.Project.Parallel = opts.parallel
	}
	if opts.set["log-file"] {
		abs, err := filepath.Abs(opts.logFile)
		if err != nil {
			return fmt.Errorf("resolve log file: %w", err)
		}
		cfg.Project.LogFile = abs
	}
	return nil
}

// selectTargets picks what to bundle: roots named on the command line, then
// the configured bundles, then the default root in the project directory.
func selectTargets(cfg *config.Config, opts *options) ([]config.Target, error) {
	format := cfg.Format()
	withOutput := func(input string) (config.Target, error) {
		abs, err := filepath.Abs(input)
		if err != nil {
			return config.Target{}, fmt.Errorf("resolve %s: %w", input, err)
		}
		t := config.Target{Input: abs, Format: format}
		if opts.output != "" {
			if t.Output, err = filepath.Abs(opts.output); err != nil {
				return config.Target{}, fmt.Errorf("resolve %s: %w", opts.output, err)
			}
		}
		return t, nil
	}
	switch {
	case len(opts.roots) > 0:
		targets := make([]config.Target, 0, len(opts.roots))
		for _, root := range opts.roots {
			t, err := withOutput(root)
			if err != nil {
				return nil, err
			}
			targets = append(targets, t)
		}
		return targets, nil
	case len(cfg.Project.Bundles) > 0:
		if opts.output != "" {
			return nil, fmt.Errorf("-o cannot be combined with configured bundles; name a root")
		}
		targets, err := cfg.Targets()
		if err != nil {
			return nil, err
		}
		if opts.set["format"] {
			for i := range targets {
				targets[i].Format = format
			}
		}
		return targets, nil
	default:
		t, err := withOutput(filepath.Join(cfg.ProjectDir, config.DefaultRoot))
		if err != nil {
			return nil, err
		}
		return []config.Target{t}, nil
	}
}

// exitCode ranks fatal failures over stale checks over partial bundles.
func exitCode(finished []tui.Finished) int {
	code := exitOK
	for _, f := range finished {
		switch {
		case f.Err != nil:
			return exitFatal
		case f.Outcome.Stale():
			code = exitStale
		case f.Outcome.Result.Partial() && code == exitOK:
			code = exitPartial
		}
	}
	return code
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func fail(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, format+"\n", args...)
	return exitFatal
}
