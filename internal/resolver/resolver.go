package resolver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/refbundle/internal/diag"
	"github.com/kingrea/refbundle/internal/document"
	"github.com/kingrea/refbundle/internal/refpath"
)

// Mode decides what happens when a referenced document cannot be used.
type Mode string

const (
	// ModeLenient reports the failure and leaves the reference node in place.
	ModeLenient Mode = "lenient"
	// ModeStrict aborts resolution with the first failure.
	ModeStrict Mode = "strict"
)

// ParseMode maps a configuration value onto a Mode. Empty selects lenient.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModeLenient:
		return ModeLenient, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("resolver: mode must be 'lenient' or 'strict', got %q", value)
	}
}

// FragmentPolicy decides how a reference fragment ("./a.yaml#/x") is handled.
// Fragments are never navigated.
type FragmentPolicy string

const (
	// FragmentIgnore inlines the whole target document.
	FragmentIgnore FragmentPolicy = "ignore"
	// FragmentReject treats a fragment as an unusable reference.
	FragmentReject FragmentPolicy = "reject"
)

// ParseFragmentPolicy maps a configuration value onto a FragmentPolicy. Empty
// selects ignore.
func ParseFragmentPolicy(value string) (FragmentPolicy, error) {
	switch FragmentPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", FragmentIgnore:
		return FragmentIgnore, nil
	case FragmentReject:
		return FragmentReject, nil
	default:
		return "", fmt.Errorf("resolver: fragments must be 'ignore' or 'reject', got %q", value)
	}
}

// Loader returns the parsed root node of the document at an absolute path.
type Loader interface {
	Load(path string) (*yaml.Node, error)
}

// Stats counts what happened to the references met during resolution.
type Stats struct {
	Resolved   int
	Unresolved int
	Cycles     int
}

// Option customizes a Resolver during construction.
type Option func(*Resolver)

// WithRefKey overrides the mapping key that marks a reference.
func WithRefKey(key string) Option {
	return func(r *Resolver) {
		if strings.TrimSpace(key) != "" {
			r.refKey = key
		}
	}
}

// WithMode selects lenient or strict failure handling.
func WithMode(mode Mode) Option {
	return func(r *Resolver) {
		if mode != "" {
			r.mode = mode
		}
	}
}

// WithFragmentPolicy selects how reference fragments are treated.
func WithFragmentPolicy(policy FragmentPolicy) Option {
	return func(r *Resolver) {
		if policy != "" {
			r.fragments = policy
		}
	}
}

// WithParallelism resolves up to n sibling branches concurrently per node.
// Values below 2 keep resolution sequential.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		r.parallelism = n
	}
}

// WithReporter delivers each diagnostic to reporter as it is raised.
func WithReporter(reporter diag.Reporter) Option {
	return func(r *Resolver) {
		r.reporter = reporter
	}
}

// Resolver expands reference nodes. A Resolver accumulates diagnostics and
// stats across calls; use a fresh one per bundle.
type Resolver struct {
	loader      Loader
	refKey      string
	mode        Mode
	fragments   FragmentPolicy
	parallelism int
	reporter    diag.Reporter
	diags       diag.List

	resolved   atomic.Int64
	unresolved atomic.Int64
	cycles     atomic.Int64
}

// New constructs a resolver that reads referenced documents through loader.
func New(loader Loader, opts ...Option) *Resolver {
	r := &Resolver{
		loader:    loader,
		refKey:    document.DefaultRefKey,
		mode:      ModeLenient,
		fragments: FragmentIgnore,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Diagnostics returns everything reported so far.
func (r *Resolver) Diagnostics() []diag.Diagnostic {
	return r.diags.Items()
}

// Err combines error diagnostics raised in lenient mode.
func (r *Resolver) Err() error {
	return r.diags.Err()
}

// Stats returns the reference counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Resolved:   int(r.resolved.Load()),
		Unresolved: int(r.unresolved.Load()),
		Cycles:     int(r.cycles.Load()),
	}
}

// Resolve returns a copy of node with every external reference replaced by
// the resolved content of its target. referringDir is the directory of the
// document node belongs to, and open holds the documents already being
// expanded (normally the document node belongs to).
func (r *Resolver) Resolve(ctx context.Context, node *yaml.Node, referringDir string, open OpenSet) (*yaml.Node, error) {
	if r.loader == nil {
		return nil, errors.New("resolver: document loader is required")
	}
	if node == nil {
		return nil, nil
	}
	return r.resolve(ctx, node, referringDir, open)
}

func (r *Resolver) resolve(ctx context.Context, node *yaml.Node, dir string, open OpenSet) (*yaml.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch node.Kind {
	case yaml.DocumentNode:
		root := document.Unwrap(node)
		if root == nil {
			return shallow(node), nil
		}
		return r.resolve(ctx, root, dir, open)
	case yaml.AliasNode:
		if node.Alias == nil {
			return shallow(node), nil
		}
		return r.resolve(ctx, node.Alias, dir, open)
	case yaml.SequenceNode:
		items, err := r.resolveAll(ctx, node.Content, dir, open)
		if err != nil {
			return nil, err
		}
		out := shallow(node)
		out.Content = items
		return out, nil
	case yaml.MappingNode:
		if ref, ok := document.Reference(node, r.refKey); ok && refpath.IsExternal(ref) {
			return r.resolveReference(ctx, node, ref, dir, open)
		}
		return r.resolveMapping(ctx, node, dir, open)
	default:
		return shallow(node), nil
	}
}

func (r *Resolver) resolveMapping(ctx context.Context, node *yaml.Node, dir string, open OpenSet) (*yaml.Node, error) {
	pairs := len(node.Content) / 2
	values := make([]*yaml.Node, pairs)
	for i := 0; i < pairs; i++ {
		values[i] = node.Content[2*i+1]
	}
	resolved, err := r.resolveAll(ctx, values, dir, open)
	if err != nil {
		return nil, err
	}
	out := shallow(node)
	out.Content = make([]*yaml.Node, 0, 2*pairs)
	for i := 0; i < pairs; i++ {
		out.Content = append(out.Content, detach(node.Content[2*i]), resolved[i])
	}
	// Merge values are resolved like any other value, so "<<" may pull in a
	// referenced document before it is merged.
	out.Content = document.FlattenMerges(out.Content)
	return out, nil
}

// resolveAll resolves sibling nodes, concurrently when parallelism allows.
// Every branch receives the same immutable open set.
func (r *Resolver) resolveAll(ctx context.Context, nodes []*yaml.Node, dir string, open OpenSet) ([]*yaml.Node, error) {
	out := make([]*yaml.Node, len(nodes))
	if r.parallelism < 2 || len(nodes) < 2 {
		for i, child := range nodes {
			resolved, err := r.resolve(ctx, child, dir, open)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, child := range nodes {
		i, child := i, child
		g.Go(func() error {
			resolved, err := r.resolve(gctx, child, dir, open)
			if err != nil {
				return err
			}
			out[i] = resolved
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolveReference(ctx context.Context, node *yaml.Node, ref, dir string, open OpenSet) (*yaml.Node, error) {
	referrer := open.Current()
	target, err := refpath.Resolve(ref, dir)
	if err != nil {
		return r.fail(node, diag.Diagnostic{
			Code:    diag.CodeInvalidReference,
			File:    referrer,
			Ref:     ref,
			Message: err.Error(),
			Err:     err,
		})
	}
	if open.Contains(target.Path) {
		r.cycles.Add(1)
		r.report(diag.Diagnostic{
			Severity: diag.SeverityWarning,
			Code:     diag.CodeCycle,
			File:     referrer,
			Ref:      ref,
			Target:   target.Path,
			Chain:    append(open.Chain(), target.Path),
			Message:  fmt.Sprintf("circular reference to %s left unresolved", target.Path),
		})
		return detach(node), nil
	}
	if target.HasFragment {
		if r.fragments == FragmentReject {
			err := &UnsupportedFragmentError{Ref: ref, Fragment: target.Fragment}
			return r.fail(node, diag.Diagnostic{
				Code:    diag.CodeUnsupportedFragment,
				File:    referrer,
				Ref:     ref,
				Target:  target.Path,
				Message: err.Error(),
				Err:     err,
			})
		}
		r.report(diag.Diagnostic{
			Severity: diag.SeverityInfo,
			Code:     diag.CodeFragmentIgnored,
			File:     referrer,
			Ref:      ref,
			Target:   target.Path,
			Message:  fmt.Sprintf("fragment %q ignored, inlining the whole document", target.Fragment),
		})
	}
	doc, err := r.loader.Load(target.Path)
	if err != nil {
		return r.fail(node, diag.Diagnostic{
			Code:    loadCode(err),
			File:    referrer,
			Ref:     ref,
			Target:  target.Path,
			Message: err.Error(),
			Err:     err,
		})
	}
	resolved, err := r.resolve(ctx, doc, filepath.Dir(target.Path), open.With(target.Path))
	if err != nil {
		return nil, err
	}
	r.resolved.Add(1)
	return resolved, nil
}

// fail recovers from an unusable reference in lenient mode by keeping the
// reference node verbatim, and aborts in strict mode.
func (r *Resolver) fail(node *yaml.Node, d diag.Diagnostic) (*yaml.Node, error) {
	if r.mode == ModeStrict {
		return nil, &ReferenceError{File: d.File, Ref: d.Ref, Err: d.Err}
	}
	d.Severity = diag.SeverityError
	r.unresolved.Add(1)
	r.report(d)
	return detach(node), nil
}

func (r *Resolver) report(d diag.Diagnostic) {
	r.diags.Add(d)
	diag.Emit(r.reporter, d)
}

func loadCode(err error) diag.Code {
	switch {
	case errors.Is(err, document.ErrNotFound):
		return diag.CodeNotFound
	case errors.Is(err, document.ErrParse):
		return diag.CodeParse
	default:
		return diag.CodeLoad
	}
}

// shallow copies node without children, anchor or alias.
func shallow(node *yaml.Node) *yaml.Node {
	dup := *node
	dup.Anchor = ""
	dup.Alias = nil
	dup.Content = nil
	return &dup
}

// detach deep copies node verbatim, expanding aliases so the copy shares
// nothing with the loaded tree.
func detach(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		return detach(node.Alias)
	}
	out := shallow(node)
	if len(node.Content) > 0 {
		out.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			out.Content[i] = detach(child)
		}
	}
	return out
}
