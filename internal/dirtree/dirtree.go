// Package dirtree tracks the case-insensitive-but-preserving directory and
// file layout of one branch's working tree, resolving the canonical
// capitalization of a path the first time it is observed and holding that
// capitalization fixed thereafter (spec 9's "first occurrence wins").
package dirtree

import "strings"

// Node is one path component: a directory or a file.
type Node struct {
	Name     string // canonical capitalization, fixed at first insertion
	IsFile   bool
	Path     string // full canonical path, set only on file nodes
	Children []*Node
}

func sameComponent(a, b string) bool {
	return strings.EqualFold(a, b)
}

// New returns an empty root node.
func New() *Node {
	return &Node{}
}

// AddFile records path as present, returning the canonical path that was
// either just established (first occurrence) or already on file for this
// location. The directory components of path are matched case-insensitively
// against whatever capitalization each directory already carries; the leaf
// file component likewise keeps whichever capitalization it was first
// inserted with.
func (n *Node) AddFile(path string) string {
	return n.addSub(path, path)
}

func (n *Node) addSub(fullPath, subPath string) string {
	parts := strings.Split(subPath, "/")
	if len(parts) == 1 {
		for _, c := range n.Children {
			if c.IsFile && sameComponent(c.Name, parts[0]) {
				return c.Path
			}
		}
		canonical := replaceLastComponent(fullPath, parts[0])
		n.Children = append(n.Children, &Node{Name: parts[0], IsFile: true, Path: canonical})
		return canonical
	}
	for _, c := range n.Children {
		if !c.IsFile && sameComponent(c.Name, parts[0]) {
			// Respell this component of fullPath as the directory first had it.
			head := len(fullPath) - len(subPath)
			fullPath = fullPath[:head] + c.Name + fullPath[head+len(parts[0]):]
			return c.addSub(fullPath, strings.Join(parts[1:], "/"))
		}
	}
	child := &Node{Name: parts[0]}
	n.Children = append(n.Children, child)
	return child.addSub(fullPath, strings.Join(parts[1:], "/"))
}

// replaceLastComponent keeps fullPath's leading directories (already
// canonicalized by the caller's recursion) and substitutes leaf for the
// final component, so the returned string always reflects first-seen
// capitalization at every level.
func replaceLastComponent(fullPath, leaf string) string {
	idx := strings.LastIndexByte(fullPath, '/')
	if idx == -1 {
		return leaf
	}
	return fullPath[:idx+1] + leaf
}

// RemoveFile deletes path (matched case-insensitively) from the tree, used
// when a delete or the source side of a rename retires a path.
func (n *Node) RemoveFile(path string) {
	n.removeSub(path)
}

func (n *Node) removeSub(subPath string) bool {
	parts := strings.Split(subPath, "/")
	if len(parts) == 1 {
		for i, c := range n.Children {
			if c.IsFile && sameComponent(c.Name, parts[0]) {
				n.Children = append(n.Children[:i], n.Children[i+1:]...)
				return true
			}
		}
		return false
	}
	for _, c := range n.Children {
		if !c.IsFile && sameComponent(c.Name, parts[0]) {
			return c.removeSub(strings.Join(parts[1:], "/"))
		}
	}
	return false
}

// Files returns every file path currently recorded, in canonical form.
func (n *Node) Files() []string {
	var out []string
	for _, c := range n.Children {
		if c.IsFile {
			out = append(out, c.Path)
		} else {
			out = append(out, c.Files()...)
		}
	}
	return out
}

// Clone returns a deep copy of the tree, used to fork a branch's
// capitalization memory from its parent branch's state at the point the
// branch started, without the two branches subsequently sharing mutation.
func (n *Node) Clone() *Node {
	c := &Node{Name: n.Name, IsFile: n.IsFile, Path: n.Path}
	for _, child := range n.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}

// Lookup reports the canonical path for path if it (case-insensitively)
// exists, and whether it was found.
func (n *Node) Lookup(path string) (string, bool) {
	return n.lookupSub(path)
}

func (n *Node) lookupSub(subPath string) (string, bool) {
	parts := strings.Split(subPath, "/")
	if len(parts) == 1 {
		for _, c := range n.Children {
			if c.IsFile && sameComponent(c.Name, parts[0]) {
				return c.Path, true
			}
		}
		return "", false
	}
	for _, c := range n.Children {
		if !c.IsFile && sameComponent(c.Name, parts[0]) {
			return c.lookupSub(strings.Join(parts[1:], "/"))
		}
	}
	return "", false
}
