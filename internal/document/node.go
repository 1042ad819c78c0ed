package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DefaultRefKey is the mapping key that marks a reference node.
const DefaultRefKey = "$ref"

// ErrEmpty indicates a payload that holds no document at all.
var ErrEmpty = errors.New("document is empty")

// Parse decodes the first document in data and returns its root node with the
// document wrapper removed.
func Parse(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	root := Unwrap(&doc)
	if root == nil {
		return nil, ErrEmpty
	}
	return root, nil
}

// Unwrap returns the root content node of a DocumentNode, or the node itself
// for any other kind.
func Unwrap(node *yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		return node.Content[0]
	}
	return node
}

// Reference reports whether node is a mapping carrying key with a string value,
// and returns that value.
func Reference(node *yaml.Node, key string) (string, bool) {
	if node == nil || node.Kind != yaml.MappingNode {
		return "", false
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode || k.Value != key {
			continue
		}
		if v.Kind == yaml.ScalarNode && v.ShortTag() == "!!str" {
			return v.Value, true
		}
		return "", false
	}
	return "", false
}

// Clone returns a deep copy of node. Aliases in the copy point at the copied
// anchors.
func Clone(node *yaml.Node) *yaml.Node {
	return cloneNode(node, make(map[*yaml.Node]*yaml.Node))
}

func cloneNode(node *yaml.Node, seen map[*yaml.Node]*yaml.Node) *yaml.Node {
	if node == nil {
		return nil
	}
	if copied, ok := seen[node]; ok {
		return copied
	}
	dup := *node
	copied := &dup
	seen[node] = copied
	if len(node.Content) > 0 {
		copied.Content = make([]*yaml.Node, len(node.Content))
		for i, child := range node.Content {
			copied.Content[i] = cloneNode(child, seen)
		}
	}
	if node.Alias != nil {
		copied.Alias = cloneNode(node.Alias, seen)
	}
	return copied
}

// KindName returns a readable name for a node kind.
func KindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return fmt.Sprintf("kind(%d)", kind)
	}
}
