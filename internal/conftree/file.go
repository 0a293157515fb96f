package conftree

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileTree is a Tree persisted to a YAML file. Repeated child occurrences
// serialize as a YAML sequence; a single occurrence round-trips from either
// a mapping or a one-element sequence.
type FileTree struct {
	*Tree
	path string
}

// NewFileTree creates a file-backed tree. The file is not read until Load.
func NewFileTree(path string) *FileTree {
	return &FileTree{Tree: New(), path: path}
}

// Path returns the backing file path
func (f *FileTree) Path() string {
	return f.path
}

// Load reads the backing file into the tree, replacing the current state.
// A missing file leaves the tree empty and is not an error.
func (f *FileTree) Load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.mu.Lock()
			f.root = newNode()
			f.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read config tree %s: %w", f.path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config tree %s: %w", f.path, err)
	}

	root := newNode()
	if err := decodeChildren(root, raw); err != nil {
		return fmt.Errorf("failed to decode config tree %s: %w", f.path, err)
	}

	f.mu.Lock()
	f.root = root
	f.mu.Unlock()
	return nil
}

// Save writes the tree to the backing file.
// Uses atomic write pattern: temp file, sync, rename.
func (f *FileTree) Save() error {
	f.mu.RLock()
	doc := encodeNode(f.root)
	f.mu.RUnlock()

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config tree: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return atomicWrite(f.path, data)
}

// atomicWrite writes data to path via a temp file in the same directory
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// decodeChildren populates n's children from an unmarshalled YAML mapping
func decodeChildren(n *node, raw map[string]any) error {
	for name, value := range raw {
		occurrences, err := decodeOccurrences(value)
		if err != nil {
			return fmt.Errorf("key %q: %w", name, err)
		}
		n.children[name] = occurrences
	}
	return nil
}

// decodeOccurrences turns one YAML value into the occurrence list for a name
func decodeOccurrences(value any) ([]*node, error) {
	switch v := value.(type) {
	case []any:
		occurrences := make([]*node, 0, len(v))
		for _, item := range v {
			child, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			occurrences = append(occurrences, child)
		}
		return occurrences, nil
	default:
		child, err := decodeValue(value)
		if err != nil {
			return nil, err
		}
		return []*node{child}, nil
	}
}

// decodeValue turns one YAML scalar or mapping into a node
func decodeValue(value any) (*node, error) {
	child := newNode()
	switch v := value.(type) {
	case map[string]any:
		if err := decodeChildren(child, v); err != nil {
			return nil, err
		}
	case []any:
		return nil, fmt.Errorf("nested sequences are not a valid tree shape")
	default:
		child.value = v
	}
	return child, nil
}

// encodeNode renders a node as a YAML document node. Mapping keys are
// emitted sorted so saves are deterministic.
func encodeNode(n *node) *yaml.Node {
	if len(n.children) == 0 {
		return scalarNode(n.value)
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, name := range names {
		occurrences := n.children[name]
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}
		var value *yaml.Node
		if len(occurrences) == 1 {
			value = encodeNode(occurrences[0])
		} else {
			value = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for _, occ := range occurrences {
				value.Content = append(value.Content, encodeNode(occ))
			}
		}
		mapping.Content = append(mapping.Content, key, value)
	}
	return mapping
}

// scalarNode renders a leaf value; yaml.Node handles tagging via Encode
func scalarNode(value any) *yaml.Node {
	out := &yaml.Node{}
	if value == nil {
		out.Kind = yaml.ScalarNode
		out.Tag = "!!null"
		out.Value = ""
		return out
	}
	if err := out.Encode(value); err != nil {
		out.Kind = yaml.ScalarNode
		out.Tag = "!!str"
		out.Value = fmt.Sprint(value)
	}
	return out
}
