package sync

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_EmptyOnFirstOpen(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	store := NewStateStore(stateDir, rootDir)
	require.NoError(t, store.Open())
	defer store.Close()

	assert.Equal(t, 0, store.FileCount())
	assert.True(t, store.LastSync().IsZero())
	assert.True(t, store.NeedsSync("docs/readme.md", 42, time.Now()))
}

func TestStateStore_NeedsSync(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	store := NewStateStore(stateDir, rootDir)
	require.NoError(t, store.Open())
	defer store.Close()

	modTime := time.Date(2026, 4, 2, 9, 30, 0, 123456789, time.UTC)

	// unknown path always needs sync
	assert.True(t, store.NeedsSync("a.txt", 10, modTime))

	store.RecordSync("a.txt", 10, modTime, "", DirectionUp)

	assert.False(t, store.NeedsSync("a.txt", 10, modTime))
	assert.True(t, store.NeedsSync("a.txt", 11, modTime), "size change needs sync")
	assert.True(t, store.NeedsSync("a.txt", 10, modTime.Add(time.Second)), "mtime change needs sync")
	assert.True(t, store.NeedsSync("a.txt", 10, modTime.Add(time.Nanosecond)), "mtime equality is exact")

	rec, ok := store.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, DirectionUp, rec.Direction)
	assert.False(t, store.LastSync().IsZero())
}

func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	modTime := time.Date(2026, 4, 2, 9, 30, 0, 500, time.UTC)

	store := NewStateStore(stateDir, rootDir)
	require.NoError(t, store.Open())
	store.RecordSync("a.txt", 10, modTime, "", DirectionUp)
	store.RecordSync("nested/dir/b.bin", 2048, modTime.Add(time.Minute), "d41d8cd98f00b204e9800998ecf8427e", DirectionBoth)
	require.NoError(t, store.Save())
	require.NoError(t, store.Close())

	reloaded := NewStateStore(stateDir, rootDir)
	require.NoError(t, reloaded.Open())
	defer reloaded.Close()

	assert.Equal(t, 2, reloaded.FileCount())
	assert.False(t, reloaded.NeedsSync("a.txt", 10, modTime))
	assert.False(t, reloaded.NeedsSync("nested/dir/b.bin", 2048, modTime.Add(time.Minute)))

	rec, ok := reloaded.Get("nested/dir/b.bin")
	require.True(t, ok)
	assert.Equal(t, "nested/dir/b.bin", rec.Path)
	assert.Equal(t, int64(2048), rec.Size)
	assert.True(t, rec.ModTime.Equal(modTime.Add(time.Minute)))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", rec.Hash)
	assert.Equal(t, DirectionBoth, rec.Direction)
	assert.False(t, reloaded.LastSync().IsZero())
}

func TestStateStore_RemoveFile(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	store := NewStateStore(stateDir, rootDir)
	require.NoError(t, store.Open())
	defer store.Close()

	modTime := time.Now().UTC()
	store.RecordSync("a.txt", 10, modTime, "", DirectionUp)
	require.False(t, store.NeedsSync("a.txt", 10, modTime))

	store.RemoveFile("a.txt")
	assert.True(t, store.NeedsSync("a.txt", 10, modTime), "record absent after remove")
	assert.Equal(t, 0, store.FileCount())
}

func TestStateStore_Paths(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	store := NewStateStore(stateDir, rootDir)
	require.NoError(t, store.Open())
	defer store.Close()

	now := time.Now().UTC()
	store.RecordSync("a.txt", 1, now, "", DirectionUp)
	store.RecordSync("b/c.txt", 2, now, "", DirectionUp)

	paths := store.Paths()
	assert.Equal(t, 2, paths.Cardinality())
	assert.True(t, paths.Contains("a.txt"))
	assert.True(t, paths.Contains("b/c.txt"))
}

func TestStateStore_CorruptFile(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	store := NewStateStore(stateDir, rootDir)
	require.NoError(t, os.MkdirAll(stateDir, 0o755))
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	err := store.Open()
	require.ErrorIs(t, err, ErrStateCorrupt)

	// caller can start fresh by removing the corrupt file
	require.NoError(t, os.Remove(store.Path()))
	require.NoError(t, store.Open())
	store.Close()
}

func TestStateStore_LockExcludesSecondOpener(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	first := NewStateStore(stateDir, rootDir)
	require.NoError(t, first.Open())

	second := NewStateStore(stateDir, rootDir)
	err := second.Open()
	require.ErrorIs(t, err, ErrStateLocked)

	require.NoError(t, first.Close())
	require.NoError(t, second.Open())
	require.NoError(t, second.Close())
}

func TestStateFileName(t *testing.T) {
	name := stateFileName("/home/alice/docs")
	assert.Equal(t, "_home_alice_docs.json", name)
	assert.NotContains(t, name, "/")

	winName := stateFileName(`C:\Users\alice\docs`)
	assert.NotContains(t, winName, `\`)
	assert.NotContains(t, winName, ":")

	// distinct roots must not collide
	assert.NotEqual(t, stateFileName("/data/a"), stateFileName("/data/b"))
}

func TestStateStore_DistinctRootsDistinctFiles(t *testing.T) {
	stateDir := t.TempDir()
	rootA := t.TempDir()
	rootB := t.TempDir()

	storeA := NewStateStore(stateDir, rootA)
	storeB := NewStateStore(stateDir, rootB)
	require.NoError(t, storeA.Open())
	require.NoError(t, storeB.Open())
	defer storeA.Close()
	defer storeB.Close()

	now := time.Now().UTC()
	storeA.RecordSync("only-in-a.txt", 1, now, "", DirectionUp)
	require.NoError(t, storeA.Save())
	require.NoError(t, storeB.Save())

	assert.NotEqual(t, storeA.Path(), storeB.Path())
	assert.True(t, storeB.NeedsSync("only-in-a.txt", 1, now))
}

func TestReadStateSummary(t *testing.T) {
	stateDir := t.TempDir()
	rootDir := t.TempDir()

	summary, err := ReadStateSummary(stateDir, rootDir)
	require.NoError(t, err)
	assert.Zero(t, summary.Files, "missing state reads as empty")
	assert.True(t, summary.LastSync.IsZero())

	store := NewStateStore(stateDir, rootDir)
	require.NoError(t, store.Open())
	store.RecordSync("a.txt", 1, time.Now().UTC(), "", DirectionUp)
	store.RecordSync("b.txt", 2, time.Now().UTC(), "", DirectionUp)
	require.NoError(t, store.Save())

	// summary reads work while the store still holds the lock
	summary, err = ReadStateSummary(stateDir, rootDir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.False(t, summary.LastSync.IsZero())
	require.NoError(t, store.Close())
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, writeFileAtomic(path, []byte("one")))
	require.NoError(t, writeFileAtomic(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	// no temp droppings left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), "skifftmp"))
}
