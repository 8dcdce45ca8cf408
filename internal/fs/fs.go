// Package fs implements the virtual filesystem tree: named directories and
// file references organized under a single root. File content is never
// stored here; a FileReference only points back at the Telegram message
// that holds the bytes.
package fs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Filesystem error taxonomy. Mutating operations are atomic: when any of
// these is returned the tree is unchanged.
var (
	ErrNotFound         = errors.New("path not found")
	ErrNotADirectory    = errors.New("not a directory")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidOperation = errors.New("invalid operation")
)

// ChatID identifies a Telegram conversation. Each conversation owns one
// tree and one session.
type ChatID int64

// Kind discriminates directory nodes from file-reference nodes.
type Kind string

const (
	KindDirectory Kind = "dir"
	KindFile      Kind = "file"
)

// ContentPointer is the opaque reference Telegram issued when the content
// was first sent. It is all we ever hold of a file.
type ContentPointer struct {
	ChatID    ChatID `json:"chat_id"`
	MessageID int    `json:"message_id"`
	FileID    string `json:"file_id,omitempty"`
	Size      int64  `json:"size,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

// Node is an entry in the tree, either a directory or a file reference.
// The parent link is rebuilt from the child maps after deserialization and
// is never persisted.
type Node struct {
	Name      string           `json:"name"`
	Kind      Kind             `json:"kind"`
	CreatedAt time.Time        `json:"created_at"`
	Content   *ContentPointer  `json:"content,omitempty"`
	Children  map[string]*Node `json:"children,omitempty"`

	parent *Node
}

// IsDirectory reports whether the node is a directory.
func (n *Node) IsDirectory() bool { return n.Kind == KindDirectory }

// IsFile reports whether the node is a file reference.
func (n *Node) IsFile() bool { return n.Kind == KindFile }

// Parent returns the owning directory, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Path reconstructs the absolute path by walking parent links to the root.
func (n *Node) Path() string {
	if n.parent == nil {
		return Separator
	}
	var segs []string
	for cur := n; cur.parent != nil; cur = cur.parent {
		segs = append(segs, cur.Name)
	}
	var b strings.Builder
	for i := len(segs) - 1; i >= 0; i-- {
		b.WriteString(Separator)
		b.WriteString(segs[i])
	}
	return b.String()
}

func newDirectory(name string, now time.Time) *Node {
	return &Node{
		Name:      name,
		Kind:      KindDirectory,
		CreatedAt: now,
		Children:  make(map[string]*Node),
	}
}

func newFile(name string, ptr ContentPointer, now time.Time) *Node {
	p := ptr
	return &Node{
		Name:      name,
		Kind:      KindFile,
		CreatedAt: now,
		Content:   &p,
	}
}

// Entry is one row of a directory listing.
type Entry struct {
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	Size      int64     `json:"size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Tree is a single-rooted, acyclic virtual filesystem. Revision increments
// on every successful mutation. Continuation tokens do not carry it: a
// redeemed token re-resolves its path against the live tree, so a listing
// whose directory vanished fails at the resolve instead of a revision check.
type Tree struct {
	Root     *Node  `json:"root"`
	Revision uint64 `json:"revision"`
}

// Default directories seeded into every new tree.
var defaultDirectories = []string{"Documents", "Images", "Videos", "Trash"}

// New returns a tree seeded with the default top-level directories.
func New() *Tree {
	now := time.Now().UTC()
	root := newDirectory("", now)
	for _, name := range defaultDirectories {
		child := newDirectory(name, now)
		child.parent = root
		root.Children[name] = child
	}
	return &Tree{Root: root}
}

// NewEmpty returns a tree with a bare root and no children.
func NewEmpty() *Tree {
	return &Tree{Root: newDirectory("", time.Now().UTC())}
}

// Relink rebuilds parent pointers after deserialization. Must be called on
// every tree restored from a snapshot before use.
func (t *Tree) Relink() {
	relink(t.Root, nil)
}

func relink(n *Node, parent *Node) {
	n.parent = parent
	for _, child := range n.Children {
		relink(child, n)
	}
}

// Resolve walks the tree from the root, failing fast at the first missing
// segment.
func (t *Tree) Resolve(path string) (*Node, error) {
	segs, err := Split(path)
	if err != nil {
		return nil, err
	}
	cur := t.Root
	for _, seg := range segs {
		if !cur.IsDirectory() {
			return nil, fmt.Errorf("%s: %w", cur.Path(), ErrNotADirectory)
		}
		next, ok := cur.Children[seg]
		if !ok {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		cur = next
	}
	return cur, nil
}

// resolveDir resolves path and requires it to be a directory.
func (t *Tree) resolveDir(path string) (*Node, error) {
	node, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	if !node.IsDirectory() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotADirectory)
	}
	return node, nil
}

// List returns the children of the directory at path, sorted by name
// (case-sensitive).
func (t *Tree) List(path string) ([]Entry, error) {
	dir, err := t.resolveDir(path)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dir.Children))
	for _, child := range dir.Children {
		e := Entry{Name: child.Name, Kind: child.Kind, CreatedAt: child.CreatedAt}
		if child.Content != nil {
			e.Size = child.Content.Size
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Mkdir creates a directory at path. Every ancestor must already exist.
func (t *Tree) Mkdir(path string) error {
	parentPath, name := SplitLast(path)
	if name == "" {
		return fmt.Errorf("mkdir %s: %w", path, ErrInvalidOperation)
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	parent, err := t.resolveDir(parentPath)
	if err != nil {
		return err
	}
	if _, ok := parent.Children[name]; ok {
		return fmt.Errorf("%s: %w", path, ErrAlreadyExists)
	}
	dir := newDirectory(name, time.Now().UTC())
	dir.parent = parent
	parent.Children[name] = dir
	t.Revision++
	return nil
}

// InsertFile places a file reference under the directory at dirPath. When
// name collides with an existing sibling a " (n)" suffix is inserted before
// the extension; the final name is returned.
func (t *Tree) InsertFile(dirPath, name string, ptr ContentPointer) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir, err := t.resolveDir(dirPath)
	if err != nil {
		return "", err
	}
	final := name
	for i := 1; ; i++ {
		if _, ok := dir.Children[final]; !ok {
			break
		}
		final = suffixName(name, i)
	}
	file := newFile(final, ptr, time.Now().UTC())
	file.parent = dir
	dir.Children[final] = file
	t.Revision++
	return final, nil
}

// suffixName turns "notes.txt" into "notes (1).txt", keeping only the last
// extension intact.
func suffixName(name string, n int) string {
	ext := ""
	if idx := strings.LastIndex(name, "."); idx > 0 {
		ext = name[idx:]
		name = name[:idx]
	}
	return fmt.Sprintf("%s (%d)%s", name, n, ext)
}

// Rename changes the name of the node at path. The root cannot be renamed.
func (t *Tree) Rename(path, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}
	node, err := t.Resolve(path)
	if err != nil {
		return err
	}
	if node.parent == nil {
		return fmt.Errorf("rename root: %w", ErrInvalidOperation)
	}
	if node.Name == newName {
		return nil
	}
	if _, ok := node.parent.Children[newName]; ok {
		return fmt.Errorf("%s: %w", newName, ErrAlreadyExists)
	}
	delete(node.parent.Children, node.Name)
	node.Name = newName
	node.parent.Children[newName] = node
	t.Revision++
	return nil
}

// Move relocates the node at src to the full destination path dst. The
// destination's parent must exist and dst itself must not; moving a
// directory underneath itself is rejected.
func (t *Tree) Move(src, dst string) error {
	node, err := t.Resolve(src)
	if err != nil {
		return err
	}
	if node.parent == nil {
		return fmt.Errorf("move root: %w", ErrInvalidOperation)
	}
	dstParentPath, dstName := SplitLast(dst)
	if dstName == "" {
		return fmt.Errorf("move to %s: %w", dst, ErrInvalidOperation)
	}
	if err := ValidateName(dstName); err != nil {
		return err
	}
	dstParent, err := t.resolveDir(dstParentPath)
	if err != nil {
		return err
	}
	if _, ok := dstParent.Children[dstName]; ok {
		return fmt.Errorf("%s: %w", dst, ErrAlreadyExists)
	}
	// Reject moves into the moved subtree itself.
	for cur := dstParent; cur != nil; cur = cur.parent {
		if cur == node {
			return fmt.Errorf("move %s into itself: %w", src, ErrInvalidOperation)
		}
	}
	delete(node.parent.Children, node.Name)
	node.Name = dstName
	node.parent = dstParent
	dstParent.Children[dstName] = node
	t.Revision++
	return nil
}

// RemoveFile deletes the file reference at path.
func (t *Tree) RemoveFile(path string) error {
	node, err := t.Resolve(path)
	if err != nil {
		return err
	}
	if !node.IsFile() {
		return fmt.Errorf("%s is a directory: %w", path, ErrInvalidOperation)
	}
	delete(node.parent.Children, node.Name)
	t.Revision++
	return nil
}

// RemoveDir deletes the directory at path. Only empty directories can be
// removed; the root cannot.
func (t *Tree) RemoveDir(path string) error {
	node, err := t.Resolve(path)
	if err != nil {
		return err
	}
	if !node.IsDirectory() {
		return fmt.Errorf("%s: %w", path, ErrNotADirectory)
	}
	if node.parent == nil {
		return fmt.Errorf("remove root: %w", ErrInvalidOperation)
	}
	if len(node.Children) > 0 {
		return fmt.Errorf("%s not empty: %w", path, ErrInvalidOperation)
	}
	delete(node.parent.Children, node.Name)
	t.Revision++
	return nil
}

// Count returns the number of nodes in the tree, root included.
func (t *Tree) Count() int {
	return countNodes(t.Root)
}

func countNodes(n *Node) int {
	count := 1
	for _, child := range n.Children {
		count += countNodes(child)
	}
	return count
}
