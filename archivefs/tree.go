package archivefs

import (
	"strings"

	"github.com/Krishna8167/archivefscache/metacache"
)

// node is one entry in the in-memory tree mirroring an archive's
// contents — the Go shape of gvfsbackendarchive.c's ArchiveFile.
type node struct {
	name     string
	info     *metacache.Info
	parent   *node
	children []*node
}

// Tree is an in-memory hierarchical index over one archive's entries,
// built up as the archive is scanned and consulted by every read/mutate
// operation in Backend.
type Tree struct {
	root *node
}

// NewTree creates a tree with just a root directory, matching
// create_root_file in gvfsbackendarchive.c.
func NewTree() *Tree {
	root := &node{name: "/", info: metacache.NewInfo("/", "/", metacache.TypeDirectory)}
	return &Tree{root: root}
}

// canonicalize splits filename into path segments the way
// archive_file_get_from_path does: a leading "./" is dropped, repeated
// slashes collapse, "." segments are absorbed into the parent, and a
// trailing empty segment (from a trailing slash) is dropped too.
func canonicalize(filename string) []string {
	filename = strings.TrimPrefix(filename, "./")
	filename = strings.TrimPrefix(filename, "/")
	raw := strings.Split(filename, "/")

	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" || s == "." {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

// Get returns the node at filename, creating intermediate directory
// nodes (and, if add is true, the final node itself) as needed —
// archive_file_get_from_path's behavior when building the tree while
// scanning an archive, where entries can arrive in any order and a
// file's parent directory may not have its own header yet.
func (t *Tree) Get(filename string, add bool) *node {
	segs := canonicalize(filename)
	cur := t.root
	for i, seg := range segs {
		last := i == len(segs)-1
		child := childNamed(cur, seg)
		if child == nil {
			if last && !add {
				return nil
			}
			child = &node{name: seg, parent: cur}
			cur.children = append(cur.children, child)
		}
		cur = child
	}
	return cur
}

// Find looks up filename without creating anything, returning nil if any
// segment along the path is missing.
func (t *Tree) Find(filename string) *node {
	segs := canonicalize(filename)
	cur := t.root
	for _, seg := range segs {
		cur = childNamed(cur, seg)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func childNamed(n *node, name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// Fixup backfills default directory Info on every node that was created
// implicitly by Get (as an intermediate path component) but never
// received its own header from the archive — fixup_dirs in
// gvfsbackendarchive.c.
func (t *Tree) Fixup() {
	var walk func(n *node)
	walk = func(n *node) {
		if n.info == nil {
			n.info = metacache.NewInfo(n.name, n.name, metacache.TypeDirectory)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, c := range t.root.children {
		walk(c)
	}
}

// Path returns n's full path from the root, the inverse of canonicalize.
func (n *node) Path() string {
	if n.parent == nil {
		return "/"
	}
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append([]string{cur.name}, segs...)
	}
	return "/" + strings.Join(segs, "/")
}

func (n *node) isDir() bool {
	return n.info == nil || n.info.Type() == metacache.TypeDirectory
}

// free detaches n from its parent and clears its own fields so nothing
// keeps it (or its subtree) reachable.
//
// The original archive_file_free recursively frees every child, the
// node's info and name, but never frees (or detaches) the node itself —
// a leak fixed here by also clearing n's own fields and removing it from
// its parent's children slice, rather than just recursing into children
// and stopping one level too early.
func free(n *node) {
	if n == nil {
		return
	}
	for _, c := range n.children {
		c.parent = nil
		free(c)
	}
	n.children = nil
	n.info = nil

	if n.parent != nil {
		siblings := n.parent.children
		for i, s := range siblings {
			if s == n {
				n.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	n.parent = nil
	n.name = ""
}
