package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the serialization used for a bundled document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat maps a user supplied name onto a Format. "auto" and "" return
// false so callers can fall back to FormatFromPath.
func ParseFormat(value string) (Format, bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return "", false, nil
	case "yaml", "yml":
		return FormatYAML, true, nil
	case "json":
		return FormatJSON, true, nil
	default:
		return "", false, fmt.Errorf("document: unknown format %q", value)
	}
}

// FormatFromPath picks JSON for .json files and YAML for everything else.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Marshal serializes node in the requested format.
func Marshal(node *yaml.Node, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, node, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes node to w. Key order is preserved, anchors and aliases are
// expanded, and containers are emitted in block style.
func Encode(w io.Writer, node *yaml.Node, format Format) error {
	root := Unwrap(node)
	if root == nil {
		return fmt.Errorf("document: nothing to encode")
	}
	switch format {
	case FormatJSON:
		var buf bytes.Buffer
		if err := writeJSON(&buf, root, 0); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err := w.Write(buf.Bytes())
		return err
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(plain(root)); err != nil {
			return fmt.Errorf("document: encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("document: unknown format %q", format)
	}
}

// yaml11Sexagesimal matches base 60 numbers such as 1:20 or 190:20:30.15.
var yaml11Sexagesimal = regexp.MustCompile(`^[-+]?[0-9][0-9_]*(:[0-5]?[0-9])+(\.[0-9_]*)?$`)

// plain copies node without anchors, aliases, merge keys, flow styling or
// quoting. The encoder re-quotes strings that would resolve to another type
// under YAML 1.2; strings a YAML 1.1 reader would take for a bool or a number
// keep their quotes.
func plain(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		return plain(node.Alias)
	}
	dup := *node
	dup.Anchor = ""
	dup.Alias = nil
	children := node.Content
	switch dup.Kind {
	case yaml.MappingNode:
		dup.Style &^= yaml.FlowStyle
		children = FlattenMerges(children)
	case yaml.SequenceNode:
		dup.Style &^= yaml.FlowStyle
	case yaml.ScalarNode:
		quoted := dup.Style & (yaml.DoubleQuotedStyle | yaml.SingleQuotedStyle)
		dup.Style &^= quoted
		if dup.ShortTag() == "!!str" && ambiguousInYAML11(dup.Value) {
			if quoted == 0 {
				quoted = yaml.DoubleQuotedStyle
			}
			dup.Style |= quoted
		}
	}
	if len(children) > 0 {
		dup.Content = make([]*yaml.Node, len(children))
		for i, child := range children {
			dup.Content[i] = plain(child)
		}
	}
	return &dup
}

func ambiguousInYAML11(value string) bool {
	switch value {
	case "y", "Y", "yes", "Yes", "YES", "n", "N", "no", "No", "NO",
		"on", "On", "ON", "off", "Off", "OFF":
		return true
	}
	return yaml11Sexagesimal.MatchString(value)
}

func writeJSON(buf *bytes.Buffer, node *yaml.Node, depth int) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, node.Content[0], depth)
	case yaml.AliasNode:
		if node.Alias == nil {
			return fmt.Errorf("document: dangling alias %q", node.Value)
		}
		return writeJSON(buf, node.Alias, depth)
	case yaml.MappingNode:
		content := FlattenMerges(node.Content)
		if len(content) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteString("{\n")
		for i := 0; i+1 < len(content); i += 2 {
			key := content[i]
			if key.Kind == yaml.AliasNode && key.Alias != nil {
				key = key.Alias
			}
			if key.Kind != yaml.ScalarNode {
				return fmt.Errorf("document: json object keys must be scalars, got %s at line %d", KindName(key.Kind), key.Line)
			}
			indent(buf, depth+1)
			writeJSONString(buf, key.Value)
			buf.WriteString(": ")
			if err := writeJSON(buf, content[i+1], depth+1); err != nil {
				return err
			}
			if i+2 < len(content) {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		indent(buf, depth)
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteString("[\n")
		for i, item := range node.Content {
			indent(buf, depth+1)
			if err := writeJSON(buf, item, depth+1); err != nil {
				return err
			}
			if i+1 < len(node.Content) {
				buf.WriteByte(',')
			}
			buf.WriteByte('\n')
		}
		indent(buf, depth)
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		writeJSONScalar(buf, node)
		return nil
	default:
		return fmt.Errorf("document: cannot encode %s as json", KindName(node.Kind))
	}
}

func writeJSONScalar(buf *bytes.Buffer, node *yaml.Node) {
	switch node.ShortTag() {
	case "!!null":
		buf.WriteString("null")
		return
	case "!!bool":
		var v bool
		if err := node.Decode(&v); err == nil {
			buf.WriteString(strconv.FormatBool(v))
			return
		}
	case "!!int":
		var v int64
		if err := node.Decode(&v); err == nil {
			buf.WriteString(strconv.FormatInt(v, 10))
			return
		}
	case "!!float":
		var v float64
		if err := node.Decode(&v); err == nil && !math.IsInf(v, 0) && !math.IsNaN(v) {
			buf.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			return
		}
	}
	writeJSONString(buf, node.Value)
}

func writeJSONString(buf *bytes.Buffer, value string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(value)
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
}

func indent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteString("  ")
	}
}
