package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunBundlesDefaultRoot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"openapi.yaml":     "info:\n  $ref: ./info.yaml\n",
		"info.yaml":        "title: Pets\n",
		"unrelated/x.yaml": "a: 1\n",
	})
	code, stdout, stderr := runCLI(t, "-project", dir)
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	got, err := os.ReadFile(filepath.Join(dir, "openapi-bundled.yaml"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "info:\n  title: Pets\n" {
		t.Fatalf("unexpected bundle:\n%s", got)
	}
	if !strings.Contains(stderr, "Resolved 1 references (0 unresolved, 0 cycles)") {
		t.Fatalf("expected progress on stderr, got:\n%s", stderr)
	}
	if !strings.Contains(stdout, "openapi-bundled.yaml written") {
		t.Fatalf("expected summary on stdout, got:\n%s", stdout)
	}
}

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"root.yaml": "a:\n  $ref: ./missing.yaml\n",
		"ok.yaml":   "a:\n  $ref: ./leaf.json\n",
		"leaf.json": "{\"v\": 1}\n",
	})
	root := filepath.Join(dir, "root.yaml")
	ok := filepath.Join(dir, "ok.yaml")

	if code, _, _ := runCLI(t, root); code != exitPartial {
		t.Fatalf("expected partial exit %d, got %d", exitPartial, code)
	}
	if code, _, _ := runCLI(t, "-strict", root); code != exitFatal {
		t.Fatalf("expected fatal exit %d in strict mode, got %d", exitFatal, code)
	}
	if code, _, _ := runCLI(t, filepath.Join(dir, "nope.yaml")); code != exitFatal {
		t.Fatalf("expected fatal exit for a missing root, got %d", code)
	}

	out := filepath.Join(dir, "dist", "ok.json")
	if code, _, _ := runCLI(t, "-check", "-o", out, ok); code != exitStale {
		t.Fatalf("expected stale exit %d for missing output, got %d", exitStale, code)
	}
	if code, _, stderr := runCLI(t, "-o", out, ok); code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "{\n  \"a\": {\n    \"v\": 1\n  }\n}\n" {
		t.Fatalf("unexpected json bundle:\n%s", got)
	}
	if code, _, _ := runCLI(t, "-check", "-o", out, ok); code != exitOK {
		t.Fatalf("expected fresh check to exit 0, got %d", code)
	}
}

func TestRunUsesConfiguredBundles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		".refbundle.yaml":          "ref_key: x-include\nlog_file: logs/run.log\nbundles:\n  - input: services/*/api.yaml\n",
		"services/users/api.yaml":  "user:\n  x-include: ./user.yaml\n",
		"services/users/user.yaml": "id: 1\n",
		"services/pets/api.yaml":   "pet:\n  $ref: ./pet.yaml\n",
	})
	code, stdout, stderr := runCLI(t, "-project", dir, "-quiet", "-tail", "3")
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d\nstdout:\n%s\nstderr:\n%s", code, stdout, stderr)
	}
	users, err := os.ReadFile(filepath.Join(dir, "services", "users", "api-bundled.yaml"))
	if err != nil {
		t.Fatalf("read users bundle: %v", err)
	}
	if string(users) != "user:\n  id: 1\n" {
		t.Fatalf("unexpected users bundle:\n%s", users)
	}
	pets, err := os.ReadFile(filepath.Join(dir, "services", "pets", "api-bundled.yaml"))
	if err != nil {
		t.Fatalf("read pets bundle: %v", err)
	}
	if string(pets) != "pet:\n  $ref: ./pet.yaml\n" {
		t.Fatalf("custom ref key must leave $ref alone, got:\n%s", pets)
	}
	if strings.Contains(stderr, "Reading") {
		t.Fatalf("-quiet must hide progress, got:\n%s", stderr)
	}
	if !strings.Contains(stdout, filepath.Join(dir, "logs", "run.log")+" (3 of ") {
		t.Fatalf("expected log tail on stdout, got:\n%s", stdout)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	dir := t.TempDir()
	cases := [][]string{
		{"-project", dir, "-fragments", "follow"},
		{"-project", dir, "-format", "toml"},
		{"-project", dir, "-parallel", "0"},
		{"-project", dir, "-log-level", "loud"},
		{"-o", "out.yaml", "a.yaml", "b.yaml"},
		{"-no-such-flag"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != exitFatal {
			t.Fatalf("expected fatal exit for %v, got %d", args, code)
		}
	}
}

func TestRunInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	code, stdout, _ := runCLI(t, "-project", dir, "-init")
	if code != exitOK || !strings.Contains(stdout, ".refbundle.yaml") {
		t.Fatalf("expected config to be created, got %d %s", code, stdout)
	}
	if code, _, _ := runCLI(t, "-project", dir, "-init"); code != exitFatal {
		t.Fatalf("expected second -init to fail, got %d", code)
	}
}

func TestRunTUIFallsBackWithoutTerminal(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"openapi.yaml": "a: 1\n"})
	code, _, stderr := runCLI(t, "-project", dir, "-tui")
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "-tui needs a terminal") {
		t.Fatalf("expected fallback warning, got:\n%s", stderr)
	}
}

func TestRunTailWarnsWithoutLogFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"openapi.yaml": "a: 1\n"})
	code, stdout, stderr := runCLI(t, "-project", dir, "-tail", "3")
	if code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "-tail needs a log file") {
		t.Fatalf("expected a warning about the missing log file, got:\n%s", stderr)
	}
	if strings.Contains(stdout, "lines)") {
		t.Fatalf("expected no tail output, got:\n%s", stdout)
	}
}
