package checksum

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/archtools/archidx/internal/model"
)

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 0, c.Len())

	c.Put(Record{Path: "if-archive/games/zork.z5", Size: 4, MTime: 1000, MD5: "m", SHA512: "s"})
	require.NoError(t, c.Commit())

	reopened, err := Open(path)
	require.NoError(t, err)
	md5v, sha, ok := reopened.Lookup("if-archive/games/zork.z5", 4, 1000)
	require.True(t, ok)
	require.Equal(t, "m", md5v)
	require.Equal(t, "s", sha)
}

func TestLookupInvalidatedByStatChange(t *testing.T) {
	c := &Cache{records: map[string]Record{
		"p": {Path: "p", Size: 4, MTime: 1000, MD5: "m", SHA512: "s"},
	}}

	_, _, ok := c.Lookup("p", 5, 1000)
	require.False(t, ok, "size change must invalidate")
	_, _, ok = c.Lookup("p", 4, 1001)
	require.False(t, ok, "mtime change must invalidate")
	_, _, ok = c.Lookup("p", 4, 1000)
	require.True(t, ok)
}

func TestCommitDropsUnreferencedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(path)
	require.NoError(t, err)
	c.Put(Record{Path: "keep", Size: 1, MTime: 1, MD5: "m", SHA512: "s"})
	c.Put(Record{Path: "deleted", Size: 2, MTime: 2, MD5: "m2", SHA512: "s2"})
	require.NoError(t, c.Commit())

	// Next run only references one path: the other file is gone from the
	// archive and its record must not be carried forever.
	c2, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 2, c2.Len())
	_, _, ok := c2.Lookup("keep", 1, 1)
	require.True(t, ok)
	require.NoError(t, c2.Commit())

	c3, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, 1, c3.Len())
	_, _, ok = c3.Lookup("keep", 1, 1)
	require.True(t, ok)
	_, _, ok = c3.Lookup("deleted", 2, 2)
	require.False(t, ok)
}

func TestCommitLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	require.NoError(t, err)
	c.Put(Record{Path: "p", Size: 1, MTime: 1, MD5: "m", SHA512: "s"})
	require.NoError(t, c.Commit())

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestComputeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	md5v, sha, err := ComputeFile(path)
	require.NoError(t, err)
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", md5v)
	require.Equal(t,
		"9b71d224bd62f3785d96d46ad3ea3d73319bfbc2890caadae2dff72519673ca72323c3d99ba5c11d7c7acc6e14b8c5da0c4663475c2e5c3adef46f73bcdec043",
		sha)
}

func populateTree(t *testing.T) (string, *model.Tree) {
	t.Helper()
	treeDir := t.TempDir()
	gamesDir := filepath.Join(treeDir, "if-archive", "games")
	require.NoError(t, os.MkdirAll(gamesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(gamesDir, "a.z5"), []byte("aaaa"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(gamesDir, "b.z5"), []byte("bbbb"), 0o644))

	tree := model.NewTree("if-archive")
	games := tree.EnsureDir("if-archive/games")
	for _, name := range []string{"a.z5", "b.z5"} {
		info, err := os.Stat(filepath.Join(gamesDir, name))
		require.NoError(t, err)
		games.AddFile(&model.FileEntry{
			Name: name, Size: info.Size(), ModTime: info.ModTime(), HasStat: true,
		})
	}
	return treeDir, tree
}

func TestPopulateRehashesOnlyChangedFiles(t *testing.T) {
	treeDir, tree := populateTree(t)
	cachePath := filepath.Join(t.TempDir(), "cache.db")

	cache, err := Open(cachePath)
	require.NoError(t, err)

	hashed, err := Populate(context.Background(), cache, treeDir, tree, 2, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, hashed, "cold cache hashes everything")
	require.NoError(t, cache.Commit())

	a := tree.Lookup("if-archive/games/a.z5")
	require.NotEmpty(t, a.MD5)
	require.NotEmpty(t, a.SHA512)

	// Second run against an unchanged tree recomputes zero digests.
	cache2, err := Open(cachePath)
	require.NoError(t, err)
	tree2 := rebuildTree(t, treeDir)
	hashed, err = Populate(context.Background(), cache2, treeDir, tree2, 2, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, hashed, "warm cache must not rehash")

	// Touching one file invalidates exactly that record.
	aPath := filepath.Join(treeDir, "if-archive", "games", "a.z5")
	require.NoError(t, os.WriteFile(aPath, []byte("AAAA"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(aPath, future, future))

	cache3, err := Open(cachePath)
	require.NoError(t, err)
	tree3 := rebuildTree(t, treeDir)
	hashed, err = Populate(context.Background(), cache3, treeDir, tree3, 2, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, hashed)
}

func TestPopulateToleratesVanishedFile(t *testing.T) {
	treeDir, tree := populateTree(t)
	// The entry exists in the model, but the file vanishes before hashing.
	require.NoError(t, os.Remove(filepath.Join(treeDir, "if-archive", "games", "b.z5")))

	cache, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	_, err = Populate(context.Background(), cache, treeDir, tree, 2, nil, nil)
	require.NoError(t, err)

	b := tree.Lookup("if-archive/games/b.z5")
	require.Empty(t, b.MD5, "unreadable file leaves digests empty")
}

func TestPopulateFillsLinkDigestsFromTarget(t *testing.T) {
	treeDir, tree := populateTree(t)
	games := tree.Dirs["if-archive/games"]
	games.AddFile(&model.FileEntry{
		Name: "alias.z5", IsLink: true, LinkTarget: "a.z5", HasStat: true,
	})

	cache, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	_, err = Populate(context.Background(), cache, treeDir, tree, 2, nil, nil)
	require.NoError(t, err)

	link := tree.Lookup("if-archive/games/alias.z5")
	target := tree.Lookup("if-archive/games/a.z5")
	require.NotEmpty(t, target.MD5)
	require.Equal(t, target.MD5, link.MD5)
	require.Equal(t, target.SHA512, link.SHA512)
}

// rebuildTree re-stats the fixture files into a fresh model, the way a new
// build run would.
func rebuildTree(t *testing.T, treeDir string) *model.Tree {
	t.Helper()
	tree := model.NewTree("if-archive")
	games := tree.EnsureDir("if-archive/games")
	gamesDir := filepath.Join(treeDir, "if-archive", "games")
	ents, err := os.ReadDir(gamesDir)
	require.NoError(t, err)
	for _, ent := range ents {
		info, err := ent.Info()
		require.NoError(t, err)
		games.AddFile(&model.FileEntry{
			Name: ent.Name(), Size: info.Size(), ModTime: info.ModTime(), HasStat: true,
		})
	}
	return tree
}
