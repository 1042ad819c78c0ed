package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/kingrea/refbundle/internal/document"
	"github.com/kingrea/refbundle/internal/resolver"
)

func TestLoadProjectConfigDefaultsWhenMissing(t *testing.T) {
	projectDir := t.TempDir()
	c, err := Load(projectDir, "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Path != "" {
		t.Fatalf("expected no config path, got %s", c.Path)
	}
	if c.Project.Version != 1 {
		t.Fatalf("expected default version == 1, got %d", c.Project.Version)
	}
	if c.Project.RefKey != document.DefaultRefKey {
		t.Fatalf("expected default ref key, got %q", c.Project.RefKey)
	}
	if c.Mode() != resolver.ModeLenient || c.FragmentPolicy() != resolver.FragmentIgnore {
		t.Fatalf("expected lenient/ignore defaults, got %s/%s", c.Mode(), c.FragmentPolicy())
	}
	if c.Format() != "" {
		t.Fatalf("expected auto format, got %q", c.Format())
	}
	targets, err := c.Targets()
	if err != nil {
		t.Fatalf("Targets returned error: %v", err)
	}
	if len(targets) != 0 {
		t.Fatalf("expected no targets without bundles, got %v", targets)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	configYAML := strings.TrimSpace(`
version: 1
ref_key: x-ref
mode: STRICT
fragments: reject
format: json
parallel: 4
log_file: logs/bundle.log
bundles:
  - input: api/openapi.yaml
    output: dist/api.json
  - input: other.yaml
    format: yaml
`)
	if err := os.WriteFile(filepath.Join(projectDir, FileName), []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(projectDir, "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if c.Path != filepath.Join(projectDir, FileName) {
		t.Fatalf("unexpected config path %s", c.Path)
	}
	if c.Project.RefKey != "x-ref" {
		t.Fatalf("expected ref key x-ref, got %q", c.Project.RefKey)
	}
	if c.Mode() != resolver.ModeStrict {
		t.Fatalf("expected strict mode, got %s", c.Mode())
	}
	if c.FragmentPolicy() != resolver.FragmentReject {
		t.Fatalf("expected reject policy, got %s", c.FragmentPolicy())
	}
	if c.Format() != document.FormatJSON {
		t.Fatalf("expected json format, got %s", c.Format())
	}
	if c.LogFile() != filepath.Join(projectDir, "logs", "bundle.log") {
		t.Fatalf("expected log file to be resolved, got %s", c.LogFile())
	}
	if got := len(c.ResolverOptions()); got != 4 {
		t.Fatalf("expected 4 resolver options, got %d", got)
	}

	targets, err := c.Targets()
	if err != nil {
		t.Fatalf("Targets returned error: %v", err)
	}
	want := []Target{
		{
			Input:  filepath.Join(projectDir, "api", "openapi.yaml"),
			Output: filepath.Join(projectDir, "dist", "api.json"),
			Format: document.FormatJSON,
		},
		{
			Input:  filepath.Join(projectDir, "other.yaml"),
			Output: filepath.Join(projectDir, "other-bundled.yaml"),
			Format: document.FormatYAML,
		},
	}
	if diff := cmp.Diff(want, targets); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadProjectConfigExplicitPathMustExist(t *testing.T) {
	projectDir := t.TempDir()
	if _, err := Load(projectDir, "missing.yaml"); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadProjectConfigValidation(t *testing.T) {
	cases := map[string]string{
		"blank input":         "bundles:\n  - output: out.yaml\n",
		"glob with output":    "bundles:\n  - input: '**/openapi.yaml'\n    output: out.yaml\n",
		"unknown mode":        "mode: loose\n",
		"unknown fragments":   "fragments: follow\n",
		"unknown format":      "format: toml\n",
		"negative parallel":   "parallel: -2\n",
		"output equals input": "bundles:\n  - input: a.yaml\n    output: a.yaml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			if err := afero.WriteFile(fs, "/project/"+FileName, []byte(body), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load("/project", "", WithFs(fs)); err == nil {
				t.Fatalf("expected validation error but got none")
			}
		})
	}
}

func TestTargetsExpandsGlobs(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/project/services/users/openapi.yaml":             "a: 1\n",
		"/project/services/orders/v2/openapi.yaml":         "a: 1\n",
		"/project/services/orders/v2/openapi-bundled.yaml": "a: 1\n",
		"/project/services/readme.md":                      "# docs\n",
	}
	for path, body := range files {
		if err := afero.WriteFile(fs, path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	configYAML := "bundles:\n  - input: services/**/openapi.yaml\n  - input: services/users/openapi.yaml\n    output: users.yaml\n"
	if err := afero.WriteFile(fs, "/project/"+FileName, []byte(configYAML), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load("/project", "", WithFs(fs))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	targets, err := c.Targets()
	if err != nil {
		t.Fatalf("Targets returned error: %v", err)
	}
	want := []Target{
		{
			Input:  filepath.FromSlash("/project/services/orders/v2/openapi.yaml"),
			Output: filepath.FromSlash("/project/services/orders/v2/openapi-bundled.yaml"),
		},
		{
			Input:  filepath.FromSlash("/project/services/users/openapi.yaml"),
			Output: filepath.FromSlash("/project/services/users/openapi-bundled.yaml"),
		},
	}
	if diff := cmp.Diff(want, targets); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestTargetsFailsWhenGlobMatchesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/project/"+FileName, []byte("bundles:\n  - input: specs/*.yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := Load("/project", "", WithFs(fs))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, err := c.Targets(); err == nil || !strings.Contains(err.Error(), "matched no files") {
		t.Fatalf("expected no-match error, got %v", err)
	}
}

func TestWriteCreatesStarterConfigOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	path, err := Write(fs, "/project")
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := Write(fs, "/project"); err == nil {
		t.Fatalf("expected second Write to refuse overwriting %s", path)
	}
	c, err := Load("/project", "", WithFs(fs))
	if err != nil {
		t.Fatalf("starter config does not load: %v", err)
	}
	if len(c.Project.Bundles) != 1 || c.Project.Bundles[0].Input != filepath.Join(c.ProjectDir, DefaultRoot) {
		t.Fatalf("unexpected starter bundles %+v", c.Project.Bundles)
	}
}
