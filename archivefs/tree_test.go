package archivefs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Krishna8167/archivefscache/metacache"
)

func TestCanonicalizeDropsDotAndEmptySegments(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, canonicalize("./a/b/"))
	require.Equal(t, []string{"a", "b"}, canonicalize("/a//b"))
	require.Equal(t, []string{}, canonicalize("."))
	require.Equal(t, []string{}, canonicalize("/"))
}

func TestTreeGetCreatesIntermediateDirectories(t *testing.T) {
	tr := NewTree()
	n := tr.Get("/a/b/c.txt", true)
	require.NotNil(t, n)
	require.Equal(t, "c.txt", n.name)

	mid := tr.Find("/a/b")
	require.NotNil(t, mid, "intermediate directory must exist even without its own header yet")
	require.Nil(t, mid.info, "an implicitly created node has no info until Fixup runs")
}

func TestTreeFindMissingSegmentReturnsNil(t *testing.T) {
	tr := NewTree()
	tr.Get("/a/b.txt", true)
	require.Nil(t, tr.Find("/a/missing/x"))
	require.Nil(t, tr.Find("/nope"))
}

func TestTreeGetWithoutAddReturnsNilForMissingLeaf(t *testing.T) {
	tr := NewTree()
	tr.Get("/dir/x.txt", true)
	require.Nil(t, tr.Get("/dir/y.txt", false))
	require.NotNil(t, tr.Get("/dir/y.txt", true))
}

func TestTreeFixupBackfillsDirectoryInfo(t *testing.T) {
	tr := NewTree()
	tr.Get("/a/b/c.txt", true)
	tr.Fixup()

	mid := tr.Find("/a/b")
	require.NotNil(t, mid.info)
	require.Equal(t, metacache.TypeDirectory, mid.info.Type())
}

func TestNodePathRoundTripsThroughCanonicalize(t *testing.T) {
	tr := NewTree()
	n := tr.Get("/a/b/c.txt", true)
	require.Equal(t, "/a/b/c.txt", n.Path())
}

func TestFreeDetachesFromParentAndClearsSubtree(t *testing.T) {
	tr := NewTree()
	dir := tr.Get("/a", true)
	child := tr.Get("/a/b.txt", true)

	free(dir)

	require.Nil(t, tr.Find("/a"), "freeing a node must detach it from the tree")
	require.Nil(t, dir.children)
	require.Nil(t, dir.info)
	require.Nil(t, dir.parent)
	require.Equal(t, "", dir.name)
	require.Nil(t, child.parent, "freeing a subtree must clear every descendant's parent link too")
}

func TestFreeOnNilIsNoop(t *testing.T) {
	require.NotPanics(t, func() { free(nil) })
}
