// Package config loads .refbundle.yaml, the optional project file that lists
// the documents to bundle and the resolver settings to bundle them with.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/refbundle/internal/artifact"
	"github.com/kingrea/refbundle/internal/document"
	"github.com/kingrea/refbundle/internal/resolver"
)

const (
	// FileName is the project configuration file looked up in the project dir.
	FileName = ".refbundle.yaml"

	// DefaultRoot is bundled when neither arguments nor bundles name an input.
	DefaultRoot = "openapi.yaml"
)

const defaultProjectConfigYAML = `# refbundle project configuration
version: 1

# Mapping key that marks a reference. Only values starting with ./ or ../ are
# treated as file references.
ref_key: $ref

# lenient leaves unresolvable references in place, strict aborts the bundle.
mode: lenient

# ignore inlines the whole target of "./file.yaml#/fragment", reject fails it.
fragments: ignore

# auto picks json for .json outputs and yaml for everything else.
format: auto

parallel: 1

bundles:
  - input: openapi.yaml
`

// BundleRef declares one input inside .refbundle.yaml. Input may be a
// doublestar glob, in which case every match gets a derived output.
type BundleRef struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// ProjectConfig models .refbundle.yaml.
type ProjectConfig struct {
	Version   int         `yaml:"version"`
	RefKey    string      `yaml:"ref_key"`
	Mode      string      `yaml:"mode"`
	Fragments string      `yaml:"fragments"`
	Format    string      `yaml:"format"`
	Parallel  int         `yaml:"parallel"`
	LogFile   string      `yaml:"log_file,omitempty"`
	Bundles   []BundleRef `yaml:"bundles"`
}

// Target is one concrete input/output pair to bundle.
type Target struct {
	Input  string
	Output string
	// Format is empty when the output extension decides.
	Format document.Format
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir anchors relative paths and glob patterns.
	ProjectDir string

	// Path is the file the configuration was read from, empty when defaults
	// are in use.
	Path string

	Project ProjectConfig

	fs afero.Fs
}

// Option customizes Load.
type Option func(*Config)

// WithFs overrides the filesystem the configuration and globs are read from.
func WithFs(fsys afero.Fs) Option {
	return func(c *Config) {
		if fsys != nil {
			c.fs = fsys
		}
	}
}

// Load reads the configuration for projectDir. An empty path looks for
// FileName in projectDir and falls back to defaults when it is absent; an
// explicit path must exist.
func Load(projectDir, path string, opts ...Option) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{
		ProjectDir: abs,
		Project:    defaultProjectConfig(),
		fs:         afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(abs, FileName)
	}
	if err := cfg.loadProjectConfig(resolvePath(abs, path), explicit); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write creates a starter configuration file in projectDir unless one exists.
func Write(fsys afero.Fs, projectDir string) (string, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	path := filepath.Join(projectDir, FileName)
	if _, err := fsys.Stat(path); err == nil {
		return path, fmt.Errorf("config: %s already exists", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return path, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := afero.WriteFile(fsys, path, []byte(defaultProjectConfigYAML), 0o644); err != nil {
		return path, fmt.Errorf("config: write %s: %w", path, err)
	}
	return path, nil
}

// Mode returns the configured failure mode.
func (c *Config) Mode() resolver.Mode {
	mode, _ := resolver.ParseMode(c.Project.Mode)
	return mode
}

// FragmentPolicy returns the configured fragment policy.
func (c *Config) FragmentPolicy() resolver.FragmentPolicy {
	policy, _ := resolver.ParseFragmentPolicy(c.Project.Fragments)
	return policy
}

// Format returns the forced output format, or "" when extensions decide.
func (c *Config) Format() document.Format {
	format, _, _ := document.ParseFormat(c.Project.Format)
	return format
}

// ResolverOptions translates the configuration into resolver options.
func (c *Config) ResolverOptions() []resolver.Option {
	return []resolver.Option{
		resolver.WithRefKey(c.Project.RefKey),
		resolver.WithMode(c.Mode()),
		resolver.WithFragmentPolicy(c.FragmentPolicy()),
		resolver.WithParallelism(c.Project.Parallel),
	}
}

// LogFile returns the absolute logbook path, empty when none is configured.
func (c *Config) LogFile() string {
	return c.Project.LogFile
}

// Targets expands the configured bundles into input/output pairs. Glob inputs
// are matched relative to the project dir and skip files that already look
// like bundled outputs. Results keep bundle order; glob matches are sorted.
func (c *Config) Targets() ([]Target, error) {
	var targets []Target
	seen := make(map[string]bool)
	add := func(t Target) {
		if seen[t.Input] {
			return
		}
		seen[t.Input] = true
		targets = append(targets, t)
	}
	for i, ref := range c.Project.Bundles {
		format, _, _ := document.ParseFormat(ref.Format)
		if format == "" {
			format = c.Format()
		}
		if !isGlob(ref.Input) {
			output := ref.Output
			if output == "" {
				output = artifact.DefaultPath(ref.Input)
			}
			add(Target{Input: ref.Input, Output: output, Format: format})
			continue
		}
		matches, err := c.glob(ref.Input)
		if err != nil {
			return nil, fmt.Errorf("config: bundles[%d]: %w", i, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("config: bundles[%d]: pattern %q matched no files", i, ref.Input)
		}
		for _, match := range matches {
			add(Target{Input: match, Output: artifact.DefaultPath(match), Format: format})
		}
	}
	return targets, nil
}

func (c *Config) glob(pattern string) ([]string, error) {
	rel, err := filepath.Rel(c.ProjectDir, pattern)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("pattern %q must stay inside %s", pattern, c.ProjectDir)
	}
	fsys := afero.NewIOFS(afero.NewBasePathFs(c.fs, c.ProjectDir))
	matches, err := doublestar.Glob(fsys, filepath.ToSlash(rel), doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expand %q: %w", pattern, err)
	}
	var out []string
	for _, match := range matches {
		if artifact.IsBundled(match) {
			continue
		}
		out = append(out, filepath.Join(c.ProjectDir, filepath.FromSlash(match)))
	}
	sort.Strings(out)
	return out, nil
}

func (c *Config) loadProjectConfig(path string, explicit bool) error {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			c.Project.normalize(c.ProjectDir)
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}

	c.Path = path
	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.RefKey) == "" {
		pc.RefKey = document.DefaultRefKey
	}
	if pc.Mode == "" {
		pc.Mode = string(resolver.ModeLenient)
	}
	if pc.Fragments == "" {
		pc.Fragments = string(resolver.FragmentIgnore)
	}
	if pc.Format == "" {
		pc.Format = "auto"
	}
	if pc.Parallel == 0 {
		pc.Parallel = 1
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.RefKey = strings.TrimSpace(pc.RefKey)
	pc.Mode = normalizeName(pc.Mode)
	pc.Fragments = normalizeName(pc.Fragments)
	pc.Format = normalizeName(pc.Format)
	pc.LogFile = resolvePath(base, pc.LogFile)
	for i := range pc.Bundles {
		pc.Bundles[i].normalize(base)
	}
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.RefKey == "" {
		return fmt.Errorf("ref_key must not be blank")
	}
	if _, err := resolver.ParseMode(pc.Mode); err != nil {
		return err
	}
	if _, err := resolver.ParseFragmentPolicy(pc.Fragments); err != nil {
		return err
	}
	if _, _, err := document.ParseFormat(pc.Format); err != nil {
		return err
	}
	if pc.Parallel < 1 {
		return fmt.Errorf("parallel must be >= 1")
	}
	for i := range pc.Bundles {
		if err := pc.Bundles[i].validate(); err != nil {
			return fmt.Errorf("bundles[%d]: %w", i, err)
		}
	}
	return nil
}

func (ref *BundleRef) normalize(base string) {
	ref.Input = resolvePath(base, ref.Input)
	ref.Output = resolvePath(base, ref.Output)
	ref.Format = normalizeName(ref.Format)
}

func (ref BundleRef) validate() error {
	if ref.Input == "" {
		return fmt.Errorf("input is required")
	}
	if isGlob(ref.Input) {
		if !doublestar.ValidatePathPattern(ref.Input) {
			return fmt.Errorf("input %q is not a valid glob", ref.Input)
		}
		if ref.Output != "" {
			return fmt.Errorf("output cannot be set for glob input %q", ref.Input)
		}
	}
	if ref.Output != "" && ref.Output == ref.Input {
		return fmt.Errorf("output must differ from input")
	}
	if _, _, err := document.ParseFormat(ref.Format); err != nil {
		return err
	}
	return nil
}

func isGlob(value string) bool {
	return strings.ContainsAny(value, "*?[{")
}

func normalizeName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
