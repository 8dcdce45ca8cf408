package fs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(msgID int) ContentPointer {
	return ContentPointer{ChatID: 1, MessageID: msgID, FileID: "f", Size: 10}
}

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestNewTreeHasDefaultDirectories(t *testing.T) {
	tree := New()
	entries, err := tree.List("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Documents", "Images", "Trash", "Videos"}, names(entries))
	for _, e := range entries {
		assert.Equal(t, KindDirectory, e.Kind)
	}
}

func TestMkdirThenListAndResolve(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/docs"))

	entries, err := tree.List("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, names(entries))

	node, err := tree.Resolve("/docs")
	require.NoError(t, err)
	assert.True(t, node.IsDirectory())
	assert.Equal(t, "/docs", node.Path())
}

func TestMkdirErrors(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/a"))

	err := tree.Mkdir("/missing/b")
	assert.ErrorIs(t, err, ErrNotFound)

	err = tree.Mkdir("/a")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Collision with a file of the same name also rejects.
	_, err = tree.InsertFile("/", "b.txt", ptr(1))
	require.NoError(t, err)
	err = tree.Mkdir("/b.txt")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestResolveFailsFast(t *testing.T) {
	tree := NewEmpty()
	_, err := tree.InsertFile("/", "f.txt", ptr(1))
	require.NoError(t, err)

	_, err = tree.Resolve("/f.txt/deeper")
	assert.ErrorIs(t, err, ErrNotADirectory)

	_, err = tree.Resolve("/nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tree.Resolve("relative")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestListNotADirectory(t *testing.T) {
	tree := NewEmpty()
	_, err := tree.InsertFile("/", "f.txt", ptr(1))
	require.NoError(t, err)

	_, err = tree.List("/f.txt")
	assert.ErrorIs(t, err, ErrNotADirectory)
}

func TestRename(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/docs"))
	_, err := tree.InsertFile("/docs", "notes.txt", ptr(1))
	require.NoError(t, err)

	require.NoError(t, tree.Rename("/docs/notes.txt", "final.txt"))

	_, err = tree.Resolve("/docs/final.txt")
	assert.NoError(t, err)
	_, err = tree.Resolve("/docs/notes.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := tree.List("/docs")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRenameErrors(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/a"))
	require.NoError(t, tree.Mkdir("/b"))

	assert.ErrorIs(t, tree.Rename("/missing", "x"), ErrNotFound)
	assert.ErrorIs(t, tree.Rename("/a", "b"), ErrAlreadyExists)
	assert.ErrorIs(t, tree.Rename("/", "x"), ErrInvalidOperation)
	assert.ErrorIs(t, tree.Rename("/a", "x/y"), ErrInvalidOperation)
}

func TestMove(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/docs"))
	require.NoError(t, tree.Mkdir("/archive"))
	_, err := tree.InsertFile("/docs", "final.txt", ptr(1))
	require.NoError(t, err)

	require.NoError(t, tree.Move("/docs", "/archive/docs"))

	_, err = tree.Resolve("/archive/docs/final.txt")
	assert.NoError(t, err)
	_, err = tree.Resolve("/docs")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveIntoDescendantFails(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/a"))
	require.NoError(t, tree.Mkdir("/a/b"))
	before, err := json.Marshal(tree)
	require.NoError(t, err)

	err = tree.Move("/a", "/a/b/a")
	assert.ErrorIs(t, err, ErrInvalidOperation)

	// Rejected operation leaves the tree byte-for-byte unchanged.
	after, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMoveErrors(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/a"))
	require.NoError(t, tree.Mkdir("/b"))

	assert.ErrorIs(t, tree.Move("/missing", "/b/x"), ErrNotFound)
	assert.ErrorIs(t, tree.Move("/a", "/missing/x"), ErrNotFound)
	assert.ErrorIs(t, tree.Move("/a", "/b"), ErrAlreadyExists)
	assert.ErrorIs(t, tree.Move("/", "/b/root"), ErrInvalidOperation)
}

func TestInsertFileCollisionAutoSuffix(t *testing.T) {
	tree := NewEmpty()

	name, err := tree.InsertFile("/", "notes.txt", ptr(1))
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", name)

	name, err = tree.InsertFile("/", "notes.txt", ptr(2))
	require.NoError(t, err)
	assert.Equal(t, "notes (1).txt", name)

	name, err = tree.InsertFile("/", "notes.txt", ptr(3))
	require.NoError(t, err)
	assert.Equal(t, "notes (2).txt", name)

	// No extension: suffix goes at the end.
	_, err = tree.InsertFile("/", "raw", ptr(4))
	require.NoError(t, err)
	name, err = tree.InsertFile("/", "raw", ptr(5))
	require.NoError(t, err)
	assert.Equal(t, "raw (1)", name)
}

func TestRemoveFileAndDir(t *testing.T) {
	tree := NewEmpty()
	require.NoError(t, tree.Mkdir("/a"))
	_, err := tree.InsertFile("/a", "f.txt", ptr(1))
	require.NoError(t, err)

	assert.ErrorIs(t, tree.RemoveFile("/a"), ErrInvalidOperation)
	assert.ErrorIs(t, tree.RemoveDir("/a"), ErrInvalidOperation) // not empty
	assert.ErrorIs(t, tree.RemoveDir("/a/f.txt"), ErrNotADirectory)

	require.NoError(t, tree.RemoveFile("/a/f.txt"))
	require.NoError(t, tree.RemoveDir("/a"))
	_, err = tree.Resolve("/a")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, tree.RemoveDir("/"), ErrInvalidOperation)
}

func TestRevisionBumpsOnMutationOnly(t *testing.T) {
	tree := NewEmpty()
	rev := tree.Revision

	require.NoError(t, tree.Mkdir("/a"))
	assert.Equal(t, rev+1, tree.Revision)

	_, err := tree.List("/")
	require.NoError(t, err)
	assert.Equal(t, rev+1, tree.Revision)

	assert.Error(t, tree.Mkdir("/a"))
	assert.Equal(t, rev+1, tree.Revision)
}

func TestRoundTripRelink(t *testing.T) {
	tree := New()
	require.NoError(t, tree.Mkdir("/Documents/work"))
	_, err := tree.InsertFile("/Documents/work", "a.txt", ptr(7))
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	var restored Tree
	require.NoError(t, json.Unmarshal(data, &restored))
	restored.Relink()

	node, err := restored.Resolve("/Documents/work/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/Documents/work/a.txt", node.Path())
	require.NotNil(t, node.Content)
	assert.Equal(t, 7, node.Content.MessageID)
}

func TestStoreGetOrCreate(t *testing.T) {
	store := NewStore()
	a := store.GetOrCreate(1)
	b := store.GetOrCreate(1)
	assert.Same(t, a, b)
	assert.Equal(t, 1, store.Len())
	assert.Nil(t, store.Get(2))
}
