// Package conftree implements the hierarchical key-value configuration
// store the auto-tag parameter set persists to. Paths are dot-separated
// segments; a segment name may occur several times under one parent, and an
// occurrence is addressed with a zero-based index: "a.b(2).c". A segment
// without an index addresses occurrence 0.
package conftree

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pscankit/autotag/internal/domain"
)

// node is one tree node. A node holds a scalar value, named children, or
// nothing; children of one name keep their occurrence order.
type node struct {
	value    any
	children map[string][]*node
}

func newNode() *node {
	return &node{children: make(map[string][]*node)}
}

// Tree is the in-memory store. All operations are safe for concurrent use;
// sub-trees returned by ListChildNodes share the owning tree's lock.
type Tree struct {
	mu   sync.RWMutex
	root *node
}

// New creates an empty tree
func New() *Tree {
	return &Tree{root: newNode()}
}

// segment is one parsed path element
type segment struct {
	name    string
	index   int
	indexed bool
}

// parsePath splits a dot path into segments, extracting "(i)" occurrence
// indexes. An unindexed segment gets index 0.
func parsePath(path string) ([]segment, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(path, ".")
	segments := make([]segment, 0, len(parts))
	for _, part := range parts {
		seg := segment{name: part}
		if open := strings.IndexByte(part, '('); open >= 0 {
			if !strings.HasSuffix(part, ")") {
				return nil, fmt.Errorf("malformed path segment %q", part)
			}
			idx, err := strconv.Atoi(part[open+1 : len(part)-1])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("malformed index in path segment %q", part)
			}
			seg.name = part[:open]
			seg.index = idx
			seg.indexed = true
		}
		if seg.name == "" {
			return nil, fmt.Errorf("empty name in path %q", path)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// ReadString returns the string value at path, or def when absent.
func (t *Tree) ReadString(path string, def string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return readString(t.root, path, def)
}

// ReadBool returns the boolean value at path, or def when absent or unparseable.
func (t *Tree) ReadBool(path string, def bool) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return readBool(t.root, path, def)
}

// Write sets the value at path, creating intermediate nodes as needed.
// Writing an index past the current occurrence count pads with empty nodes.
func (t *Tree) Write(path string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return write(t.root, path, value)
}

// ClearSubtree removes every occurrence of the final path segment. An
// indexed final segment removes only that occurrence.
func (t *Tree) ClearSubtree(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	clearSubtree(t.root, path)
}

// ListChildNodes returns the sub-trees rooted at each occurrence of the
// final path segment, in occurrence order. A missing path yields an empty
// list; a path that traverses a scalar leaf is a structural failure.
func (t *Tree) ListChildNodes(basePath string) ([]domain.ConfigTree, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	nodes, err := listChildren(t.root, basePath)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ConfigTree, len(nodes))
	for i, n := range nodes {
		views[i] = &view{owner: t, node: n}
	}
	return views, nil
}

// view is a sub-tree scoped at one node, sharing the owning tree's lock
type view struct {
	owner *Tree
	node  *node
}

func (v *view) ReadString(path string, def string) string {
	v.owner.mu.RLock()
	defer v.owner.mu.RUnlock()
	return readString(v.node, path, def)
}

func (v *view) ReadBool(path string, def bool) bool {
	v.owner.mu.RLock()
	defer v.owner.mu.RUnlock()
	return readBool(v.node, path, def)
}

func (v *view) Write(path string, value any) error {
	v.owner.mu.Lock()
	defer v.owner.mu.Unlock()
	return write(v.node, path, value)
}

func (v *view) ClearSubtree(path string) {
	v.owner.mu.Lock()
	defer v.owner.mu.Unlock()
	clearSubtree(v.node, path)
}

func (v *view) ListChildNodes(basePath string) ([]domain.ConfigTree, error) {
	v.owner.mu.RLock()
	defer v.owner.mu.RUnlock()
	nodes, err := listChildren(v.node, basePath)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ConfigTree, len(nodes))
	for i, n := range nodes {
		views[i] = &view{owner: v.owner, node: n}
	}
	return views, nil
}

// lookup walks segments from n, returning nil when the path is absent
func lookup(n *node, segments []segment) *node {
	current := n
	for _, seg := range segments {
		occurrences := current.children[seg.name]
		if seg.index >= len(occurrences) {
			return nil
		}
		current = occurrences[seg.index]
	}
	return current
}

func readString(n *node, path string, def string) string {
	segments, err := parsePath(path)
	if err != nil {
		return def
	}
	target := lookup(n, segments)
	if target == nil || target.value == nil {
		return def
	}
	switch v := target.value.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func readBool(n *node, path string, def bool) bool {
	segments, err := parsePath(path)
	if err != nil {
		return def
	}
	target := lookup(n, segments)
	if target == nil || target.value == nil {
		return def
	}
	switch v := target.value.(type) {
	case bool:
		return v
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return parsed
	default:
		return def
	}
}

func write(n *node, path string, value any) error {
	segments, err := parsePath(path)
	if err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	current := n
	for _, seg := range segments {
		occurrences := current.children[seg.name]
		for len(occurrences) <= seg.index {
			occurrences = append(occurrences, newNode())
		}
		current.children[seg.name] = occurrences
		current = occurrences[seg.index]
	}
	if len(current.children) > 0 {
		return fmt.Errorf("write %q: cannot set scalar value over subtree", path)
	}
	current.value = value
	return nil
}

func clearSubtree(n *node, path string) {
	segments, err := parsePath(path)
	if err != nil {
		return
	}
	last := segments[len(segments)-1]
	parent := lookup(n, segments[:len(segments)-1])
	if parent == nil {
		return
	}
	if last.indexed {
		// indexed final segment removes one occurrence
		occurrences := parent.children[last.name]
		if last.index < len(occurrences) {
			parent.children[last.name] = append(occurrences[:last.index], occurrences[last.index+1:]...)
		}
		return
	}
	delete(parent.children, last.name)
}

func listChildren(n *node, basePath string) ([]*node, error) {
	segments, err := parsePath(basePath)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", basePath, err)
	}
	current := n
	for i, seg := range segments[:len(segments)-1] {
		occurrences := current.children[seg.name]
		if seg.index >= len(occurrences) {
			return nil, nil
		}
		current = occurrences[seg.index]
		if len(current.children) == 0 && current.value != nil {
			return nil, fmt.Errorf("list %q: segment %q is a scalar leaf", basePath, segments[i].name)
		}
	}
	last := segments[len(segments)-1]
	return current.children[last.name], nil
}
