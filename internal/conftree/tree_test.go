package conftree

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected []segment
		wantErr  bool
	}{
		{"single segment", "a", []segment{{name: "a"}}, false},
		{"dotted path", "a.b.c", []segment{{name: "a"}, {name: "b"}, {name: "c"}}, false},
		{"indexed segment", "a.b(2).c", []segment{{name: "a"}, {name: "b", index: 2, indexed: true}, {name: "c"}}, false},
		{"index zero", "a(0)", []segment{{name: "a", index: 0, indexed: true}}, false},
		{"empty path", "", nil, true},
		{"empty segment", "a..b", nil, true},
		{"missing close paren", "a(1", nil, true},
		{"negative index", "a(-1)", nil, true},
		{"non-numeric index", "a(x)", nil, true},
		{"bare index", "(1)", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := parsePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, segments)
		})
	}
}

func TestTree_WriteAndReadString(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("a.b.c", "hello"))
	assert.Equal(t, "hello", tree.ReadString("a.b.c", ""))

	// Missing path returns the default
	assert.Equal(t, "fallback", tree.ReadString("a.b.missing", "fallback"))

	// Non-string scalar values read back via their string form
	require.NoError(t, tree.Write("a.b.n", 42))
	assert.Equal(t, "42", tree.ReadString("a.b.n", ""))
}

func TestTree_ReadBool(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("flags.on", true))
	require.NoError(t, tree.Write("flags.off", false))
	require.NoError(t, tree.Write("flags.text", "true"))
	require.NoError(t, tree.Write("flags.junk", "not-a-bool"))

	assert.True(t, tree.ReadBool("flags.on", false))
	assert.False(t, tree.ReadBool("flags.off", true))
	assert.True(t, tree.ReadBool("flags.text", false))

	// Unparseable and missing values fall back to the default
	assert.True(t, tree.ReadBool("flags.junk", true))
	assert.False(t, tree.ReadBool("flags.junk", false))
	assert.True(t, tree.ReadBool("flags.missing", true))
}

func TestTree_IndexedOccurrences(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("list.item(0).name", "first"))
	require.NoError(t, tree.Write("list.item(1).name", "second"))
	require.NoError(t, tree.Write("list.item(2).name", "third"))

	assert.Equal(t, "first", tree.ReadString("list.item(0).name", ""))
	assert.Equal(t, "second", tree.ReadString("list.item(1).name", ""))
	assert.Equal(t, "third", tree.ReadString("list.item(2).name", ""))

	// An unindexed segment addresses occurrence 0
	assert.Equal(t, "first", tree.ReadString("list.item.name", ""))
}

func TestTree_WritePadsOccurrences(t *testing.T) {
	tree := New()

	// Writing index 2 first pads occurrences 0 and 1 with empty nodes
	require.NoError(t, tree.Write("list.item(2).name", "third"))

	children, err := tree.ListChildNodes("list.item")
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "", children[0].ReadString("name", ""))
	assert.Equal(t, "third", children[2].ReadString("name", ""))
}

func TestTree_WriteScalarOverSubtreeFails(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("a.b.c", "leaf"))

	err := tree.Write("a.b", "scalar")
	assert.Error(t, err)
}

func TestTree_ListChildNodes(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("base.child(0).v", "a"))
	require.NoError(t, tree.Write("base.child(1).v", "b"))

	children, err := tree.ListChildNodes("base.child")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].ReadString("v", ""))
	assert.Equal(t, "b", children[1].ReadString("v", ""))
}

func TestTree_ListChildNodes_MissingPath(t *testing.T) {
	tree := New()

	children, err := tree.ListChildNodes("no.such.path")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestTree_ListChildNodes_ScalarLeafIsStructuralFailure(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("a.b", "scalar"))

	// Traversing through the scalar leaf b toward c is a structural failure
	_, err := tree.ListChildNodes("a.b.c")
	assert.Error(t, err)
}

func TestTree_ClearSubtree(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("base.child(0).v", "a"))
	require.NoError(t, tree.Write("base.child(1).v", "b"))
	require.NoError(t, tree.Write("base.other", "kept"))

	tree.ClearSubtree("base.child")

	children, err := tree.ListChildNodes("base.child")
	require.NoError(t, err)
	assert.Empty(t, children)

	// Siblings survive
	assert.Equal(t, "kept", tree.ReadString("base.other", ""))
}

func TestTree_ClearSubtree_IndexedRemovesOneOccurrence(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("base.child(0).v", "a"))
	require.NoError(t, tree.Write("base.child(1).v", "b"))
	require.NoError(t, tree.Write("base.child(2).v", "c"))

	tree.ClearSubtree("base.child(1)")

	children, err := tree.ListChildNodes("base.child")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "a", children[0].ReadString("v", ""))
	assert.Equal(t, "c", children[1].ReadString("v", ""))
}

func TestTree_ClearSubtree_MissingPathIsNoOp(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("a.b", "v"))
	tree.ClearSubtree("no.such.path")

	assert.Equal(t, "v", tree.ReadString("a.b", ""))
}

func TestView_WritesReachOwningTree(t *testing.T) {
	tree := New()

	require.NoError(t, tree.Write("base.child(0).name", "before"))

	children, err := tree.ListChildNodes("base.child")
	require.NoError(t, err)
	require.Len(t, children, 1)

	require.NoError(t, children[0].Write("name", "after"))
	assert.Equal(t, "after", tree.ReadString("base.child(0).name", ""))
}

func TestProperty_WriteReadRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("a written string value reads back unchanged", prop.ForAll(
		func(names []string, value string) bool {
			if len(names) == 0 {
				return true
			}

			path := ""
			for i, name := range names {
				if i > 0 {
					path += "."
				}
				path += name
			}

			tree := New()
			if err := tree.Write(path, value); err != nil {
				return false
			}
			return tree.ReadString(path, "") == value
		},
		gen.SliceOfN(3, gen.Identifier()),
		gen.AlphaString(),
	))

	properties.Property("indexed writes keep occurrence order", prop.ForAll(
		func(count int) bool {
			if count <= 0 {
				return true
			}

			tree := New()
			for i := 0; i < count; i++ {
				path := fmt.Sprintf("base.child(%d).v", i)
				if err := tree.Write(path, fmt.Sprintf("v%d", i)); err != nil {
					return false
				}
			}

			children, err := tree.ListChildNodes("base.child")
			if err != nil || len(children) != count {
				return false
			}
			for i, child := range children {
				if child.ReadString("v", "") != fmt.Sprintf("v%d", i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 30),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
