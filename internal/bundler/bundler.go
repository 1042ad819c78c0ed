// Package bundler turns a root document and everything it references into one
// self-contained document, and writes or checks the bundled output.
package bundler

import (
	"context"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/refbundle/internal/artifact"
	"github.com/kingrea/refbundle/internal/diag"
	"github.com/kingrea/refbundle/internal/document"
	"github.com/kingrea/refbundle/internal/resolver"
)

// Result is the outcome of bundling one root document.
type Result struct {
	Root        string
	Document    *yaml.Node
	Diagnostics []diag.Diagnostic
	Stats       resolver.Stats
	// Reads counts the files read while bundling this root.
	Reads int
}

// Err combines the error diagnostics, nil when every reference resolved or
// was a cycle.
func (r *Result) Err() error {
	if r == nil {
		return nil
	}
	var list diag.List
	for _, d := range r.Diagnostics {
		list.Add(d)
	}
	return list.Err()
}

// Partial reports whether references were left unresolved.
func (r *Result) Partial() bool {
	return r != nil && r.Stats.Unresolved > 0
}

// Marshal serializes the bundled document.
func (r *Result) Marshal(format document.Format) ([]byte, error) {
	return document.Marshal(r.Document, format)
}

// Outcome is the result of a Run: the bundle plus what happened to its output.
type Outcome struct {
	Input  string
	Output string
	Format document.Format
	Result *Result
	// Check is set when the run only compared against the existing output.
	Check   *artifact.CheckResult
	Written bool
}

// Stale reports whether a check run found the output missing or outdated.
func (o *Outcome) Stale() bool {
	return o != nil && o.Check != nil && o.Check.State != artifact.StateFresh
}

// Option customizes a Bundler during construction.
type Option func(*Bundler)

// WithStore overrides the document store, for example to share a cache
// between bundles or to read from an in-memory filesystem.
func WithStore(store *document.Store) Option {
	return func(b *Bundler) {
		if store != nil {
			b.store = store
		}
	}
}

// WithOutputs overrides the store bundled outputs are written to.
func WithOutputs(outputs *artifact.Store) Option {
	return func(b *Bundler) {
		if outputs != nil {
			b.outputs = outputs
		}
	}
}

// WithResolverOptions forwards options to the resolver built for each bundle.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(b *Bundler) {
		b.resolverOpts = append(b.resolverOpts, opts...)
	}
}

// WithReporter receives progress messages and diagnostics.
func WithReporter(reporter diag.Reporter) Option {
	return func(b *Bundler) {
		if reporter != nil {
			b.reporter = reporter
		}
	}
}

// WithFormat forces the output format instead of deriving it from the output
// extension.
func WithFormat(format document.Format) Option {
	return func(b *Bundler) {
		b.format = format
	}
}

// Bundler bundles root documents. It is safe to run several bundles from one
// Bundler; each gets its own resolver.
type Bundler struct {
	store        *document.Store
	outputs      *artifact.Store
	resolverOpts []resolver.Option
	reporter     diag.Reporter
	format       document.Format
}

// New constructs a Bundler reading from and writing to the OS filesystem
// unless overridden.
func New(opts ...Option) *Bundler {
	b := &Bundler{reporter: diag.Discard{}}
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		b.store = document.NewStore()
	}
	if b.outputs == nil {
		b.outputs = artifact.NewStore(artifact.WithFs(b.store.Fs()))
	}
	return b
}

// Bundle loads rootPath and resolves every external reference reachable from
// it. Failing to load the root is fatal; failures below the root follow the
// resolver mode.
func (b *Bundler) Bundle(ctx context.Context, rootPath string) (*Result, error) {
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("bundler: resolve %s: %w", rootPath, err)
	}
	b.reporter.Info("Reading %s...", root)
	before := b.store.Reads()
	doc, err := b.store.Load(root)
	if err != nil {
		return nil, fmt.Errorf("bundler: load root: %w", err)
	}

	opts := append([]resolver.Option{}, b.resolverOpts...)
	opts = append(opts, resolver.WithReporter(b.reporter))
	res := resolver.New(b.store, opts...)
	b.reporter.Info("Resolving references...")
	bundled, err := res.Resolve(ctx, doc, filepath.Dir(root), resolver.NewOpenSet(root))
	if err != nil {
		return nil, fmt.Errorf("bundler: %s: %w", root, err)
	}

	stats := res.Stats()
	b.reporter.Info("Resolved %d references (%d unresolved, %d cycles)", stats.Resolved, stats.Unresolved, stats.Cycles)
	return &Result{
		Root:        root,
		Document:    bundled,
		Diagnostics: res.Diagnostics(),
		Stats:       stats,
		Reads:       b.store.Reads() - before,
	}, nil
}

// Run bundles input and writes the result to output, or with check set only
// compares it with what output already holds. An empty output derives
// "<stem>-bundled<ext>" next to input.
func (b *Bundler) Run(ctx context.Context, input, output string, check bool) (*Outcome, error) {
	if output == "" {
		output = artifact.DefaultPath(input)
	}
	output, err := filepath.Abs(output)
	if err != nil {
		return nil, fmt.Errorf("bundler: resolve %s: %w", output, err)
	}
	result, err := b.Bundle(ctx, input)
	if err != nil {
		return nil, err
	}
	if output == result.Root {
		return nil, fmt.Errorf("bundler: output %s would overwrite the root document", output)
	}

	format := b.format
	if format == "" {
		format = document.FormatFromPath(output)
	}
	data, err := result.Marshal(format)
	if err != nil {
		return nil, fmt.Errorf("bundler: encode %s: %w", output, err)
	}

	outcome := &Outcome{Input: result.Root, Output: output, Format: format, Result: result}
	if check {
		res, err := b.outputs.Check(output, data)
		if err != nil {
			return nil, fmt.Errorf("bundler: check %s: %w", output, err)
		}
		outcome.Check = &res
		switch res.State {
		case artifact.StateFresh:
			b.reporter.Info("%s is up to date", output)
		case artifact.StateMissing:
			b.reporter.Warn("%s does not exist", output)
		default:
			b.reporter.Warn("%s is out of date", output)
		}
		return outcome, nil
	}

	b.reporter.Info("Writing bundled document...")
	if err := b.outputs.Write(output, data); err != nil {
		return nil, fmt.Errorf("bundler: %w", err)
	}
	outcome.Written = true
	b.reporter.Info("Bundled document written to %s", output)
	return outcome, nil
}
