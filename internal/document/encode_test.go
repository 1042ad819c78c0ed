package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, src string) []byte {
	t.Helper()
	return []byte(strings.TrimLeft(src, "\n"))
}

func TestEncodeYAMLPreservesOrderAndDropsAnchors(t *testing.T) {
	node, err := Parse(mustParse(t, `
zeta: &z
  keep: 1
alpha: *z
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Marshal(node, FormatYAML)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "zeta:\n  keep: 1\nalpha:\n  keep: 1\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("unexpected yaml (-want +got):\n%s", diff)
	}
}

func TestEncodeYAMLFromJSONUsesBlockStyle(t *testing.T) {
	node, err := Parse([]byte(`{"b": "1", "a": {"c": "x", "d": "true"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Marshal(node, FormatYAML)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "b: \"1\"\na:\n  c: x\n  d: \"true\"\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("unexpected yaml (-want +got):\n%s", diff)
	}
}

func TestEncodeJSONPreservesOrderAndTypes(t *testing.T) {
	node, err := Parse(mustParse(t, `
b: 1
a:
  - true
  - ~
  - 'x'
  - 1.5
c: 0x10
html: "<a&b>"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Marshal(node, FormatJSON)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{
  "b": 1,
  "a": [
    true,
    null,
    "x",
    1.5
  ],
  "c": 16,
  "html": "<a&b>"
}
`
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("unexpected json (-want +got):\n%s", diff)
	}
	if !json.Valid(out) {
		t.Fatalf("output is not valid json")
	}
}

func TestEncodeJSONEmptyContainers(t *testing.T) {
	node, err := Parse([]byte("a: {}\nb: []\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Marshal(node, FormatJSON)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "{\n  \"a\": {},\n  \"b\": []\n}\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("unexpected json (-want +got):\n%s", diff)
	}
}

func TestEncodeJSONRejectsComplexKeys(t *testing.T) {
	node, err := Parse([]byte("? [a, b]\n: value\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Marshal(node, FormatJSON); err == nil {
		t.Fatalf("expected error for sequence key")
	}
}

func TestFormatSelection(t *testing.T) {
	if FormatFromPath("out/api.JSON") != FormatJSON {
		t.Fatalf("expected json for .JSON extension")
	}
	if FormatFromPath("out/api.yml") != FormatYAML {
		t.Fatalf("expected yaml for .yml extension")
	}
	if f, ok, err := ParseFormat("json"); err != nil || !ok || f != FormatJSON {
		t.Fatalf("unexpected ParseFormat(json): %v %v %v", f, ok, err)
	}
	if _, ok, err := ParseFormat("auto"); err != nil || ok {
		t.Fatalf("expected auto to defer to path, got ok=%v err=%v", ok, err)
	}
	if _, _, err := ParseFormat("toml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestEncodeYAMLKeepsQuotesOnYAML11Scalars(t *testing.T) {
	node, err := Parse(mustParse(t, `
a: 'yes'
b: "on"
c: '1:20'
d: NO
e: '190:20:30.15'
f: 'plain'
g: '123'
'off': key
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Marshal(node, FormatYAML)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := "a: 'yes'\nb: \"on\"\nc: '1:20'\nd: \"NO\"\ne: '190:20:30.15'\nf: plain\ng: \"123\"\n'off': key\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("unexpected yaml (-want +got):\n%s", diff)
	}
}

func TestEncodeAppliesMergeKeys(t *testing.T) {
	node, err := Parse(mustParse(t, `
base: &b {x: 1, y: 1}
item: {<<: *b, y: 2}
list:
  <<: [*b, {z: 3}]
  x: 0
literal: {'<<': kept}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := Marshal(node, FormatJSON)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not json: %v\n%s", err, out)
	}
	wantJSON := map[string]map[string]any{
		"base":    {"x": 1.0, "y": 1.0},
		"item":    {"x": 1.0, "y": 2.0},
		"list":    {"x": 0.0, "y": 1.0, "z": 3.0},
		"literal": {"<<": "kept"},
	}
	if diff := cmp.Diff(wantJSON, decoded); diff != "" {
		t.Fatalf("unexpected json (-want +got):\n%s", diff)
	}
	if !strings.Contains(string(out), "\"item\": {\n    \"x\": 1,\n    \"y\": 2\n  }") {
		t.Fatalf("expected merged keys in source order, got:\n%s", out)
	}

	out, err = Marshal(node, FormatYAML)
	if err != nil {
		t.Fatalf("marshal yaml: %v", err)
	}
	want := "base:\n  x: 1\n  y: 1\nitem:\n  x: 1\n  y: 2\nlist:\n  x: 0\n  y: 1\n  z: 3\nliteral:\n  \"<<\": kept\n"
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Fatalf("unexpected yaml (-want +got):\n%s", diff)
	}
}
