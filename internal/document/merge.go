package document

import "gopkg.in/yaml.v3"

// isMergeKey reports whether key is a YAML merge key ("<<" in plain style).
func isMergeKey(key *yaml.Node) bool {
	if key != nil && key.Kind == yaml.AliasNode {
		key = key.Alias
	}
	return key != nil && key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge"
}

// mergeSources returns the mappings a merge value contributes, highest
// precedence first. ok is false when value is neither a mapping nor a
// sequence of mappings.
func mergeSources(value *yaml.Node) ([]*yaml.Node, bool) {
	value = unalias(value)
	if value == nil {
		return nil, false
	}
	switch value.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{value}, true
	case yaml.SequenceNode:
		sources := make([]*yaml.Node, 0, len(value.Content))
		for _, item := range value.Content {
			item = unalias(item)
			if item == nil || item.Kind != yaml.MappingNode {
				return nil, false
			}
			sources = append(sources, item)
		}
		return sources, true
	default:
		return nil, false
	}
}

// FlattenMerges returns mapping content with every merge key replaced by the
// pairs it contributes. Keys the mapping sets itself win over merged keys, and
// earlier merge sources win over later ones. A merged key overridden later
// keeps its position. Content without merge keys is returned as is.
func FlattenMerges(content []*yaml.Node) []*yaml.Node {
	if !hasMergeKey(content) {
		return content
	}
	out := make([]*yaml.Node, 0, len(content))
	index := make(map[string]int)
	merged := make(map[string]bool)
	for i := 0; i+1 < len(content); i += 2 {
		key, value := content[i], content[i+1]
		if isMergeKey(key) {
			sources, ok := mergeSources(value)
			if !ok {
				out = append(out, key, value)
				continue
			}
			for _, src := range sources {
				pairs := FlattenMerges(src.Content)
				for j := 0; j+1 < len(pairs); j += 2 {
					name, ok := scalarKey(pairs[j])
					if !ok {
						out = append(out, pairs[j], pairs[j+1])
						continue
					}
					if _, seen := index[name]; seen {
						continue
					}
					index[name] = len(out)
					merged[name] = true
					out = append(out, pairs[j], pairs[j+1])
				}
			}
			continue
		}
		if name, ok := scalarKey(key); ok {
			if pos, seen := index[name]; seen && merged[name] {
				out[pos], out[pos+1] = key, value
				merged[name] = false
				continue
			}
			index[name] = len(out)
		}
		out = append(out, key, value)
	}
	return out
}

func hasMergeKey(content []*yaml.Node) bool {
	for i := 0; i+1 < len(content); i += 2 {
		if isMergeKey(content[i]) {
			return true
		}
	}
	return false
}

func scalarKey(key *yaml.Node) (string, bool) {
	key = unalias(key)
	if key == nil || key.Kind != yaml.ScalarNode {
		return "", false
	}
	return key.Value, true
}

func unalias(node *yaml.Node) *yaml.Node {
	for node != nil && node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	return node
}
