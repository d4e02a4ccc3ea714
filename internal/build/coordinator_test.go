package build

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archtools/archidx/internal/config"
	"github.com/archtools/archidx/internal/metrics"
)

var buildNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

const sampleDocument = `# if-archive:

The root of the archive.

## games/zcode/zork.z5

Listed from the very top.

# if-archive/games:

Games, sorted by system.

## readme.txt
tuid: abc123

How the games directories are organized.

## zcode/zork.z5

The classic, mentioned a level up.

# if-archive/games/zcode:

## zork.z5
tuid: abc123

The great underground empire.
`

// setupArchive lays out a tree, lib dir, dest dir and index document, and
// returns a ready configuration.
func setupArchive(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()

	tree := filepath.Join(base, "htdocs")
	zcode := filepath.Join(tree, "if-archive", "games", "zcode")
	require.NoError(t, os.MkdirAll(zcode, 0o755))
	writeArchiveFile(t, filepath.Join(tree, "if-archive", "games", "readme.txt"), "read me")
	writeArchiveFile(t, filepath.Join(zcode, "zork.z5"), "west of house")

	lib := filepath.Join(base, "lib")
	require.NoError(t, os.Mkdir(lib, 0o755))
	dest := filepath.Join(base, "indexes")
	require.NoError(t, os.Mkdir(dest, 0o755))

	doc := filepath.Join(base, "Master-Index")
	writeArchiveFile(t, doc, sampleDocument)

	// Directory mtimes participate in incremental planning; pin them in
	// the past like the files.
	when := buildNow.Add(-10 * 24 * time.Hour)
	for _, dir := range []string{
		filepath.Join(tree, "if-archive"),
		filepath.Join(tree, "if-archive", "games"),
		zcode,
	} {
		require.NoError(t, os.Chtimes(dir, when, when))
	}

	return &config.Config{
		Site: config.SiteConfig{Title: "Test Archive", BaseURL: "https://files.example.org"},
		Archive: config.ArchiveConfig{
			RootName:      "if-archive",
			Tree:          tree,
			IndexDocument: doc,
			Lib:           lib,
			Dest:          dest,
		},
		Build: config.BuildConfig{Workers: 2},
		State: config.StateConfig{Cache: "checksum-cache.db", Marker: "last-build", Lock: "build.lock"},
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// writeArchiveFile pins the mtime in the past relative to the fixed build
// clock so an unchanged second run sees an unchanged tree.
func writeArchiveFile(t *testing.T, path, content string) {
	t.Helper()
	writeTestFile(t, path, content)
	when := buildNow.Add(-10 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, when, when))
}

func testCoordinator(cfg *config.Config) *Coordinator {
	return &Coordinator{
		Config:  cfg,
		Metrics: metrics.NoopRecorder{},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return buildNow },
	}
}

func TestRunEndToEnd(t *testing.T) {
	cfg := setupArchive(t)
	c := testCoordinator(cfg)
	require.NoError(t, c.Run(context.Background(), Options{}))

	dest := cfg.Archive.Dest
	for _, name := range []string{
		"if-archive.html", "if-archiveXgames.html", "if-archiveXgamesXzcode.html",
		"date.html", "dirlist.html", "Master-Index.xml", "index-feed.xml",
		"checksum-cache.db", "last-build",
	} {
		_, err := os.Stat(filepath.Join(dest, name))
		assert.NoError(t, err, "missing %s", name)
	}

	// the lock is gone after the run
	_, err := os.Stat(cfg.LockPath())
	assert.True(t, os.IsNotExist(err))

	page := readOutput(t, dest, "if-archiveXgamesXzcode.html")
	// the file lives at its true location with its own description
	assert.Contains(t, page, "zork.z5")
	assert.Contains(t, page, "The great underground empire.")
	// both ancestor declarations surface as provenance-tagged entries,
	// shallowest first
	rootIdx := strings.Index(page, "Listed from the very top.")
	gamesIdx := strings.Index(page, "The classic, mentioned a level up.")
	require.Greater(t, rootIdx, 0)
	require.Greater(t, gamesIdx, 0)
	assert.Less(t, rootIdx, gamesIdx)
	// the shared identifier links it to readme.txt in one cluster
	assert.Contains(t, page, `<span class="id">abc123</span>`)

	// ancestors carrying nested declarations list the mention
	games := readOutput(t, dest, "if-archiveXgames.html")
	assert.Contains(t, games, "Also described here")

	xml := readOutput(t, dest, "Master-Index.xml")
	assert.Contains(t, xml, "<name>if-archive/games/zcode</name>")
	assert.Contains(t, xml, "<md5>")
}

func TestRunLockHeldLeavesStateUntouched(t *testing.T) {
	cfg := setupArchive(t)
	writeTestFile(t, cfg.LockPath(), `{"build_id":"other","pid":1,"host":"h","started":"2026-03-15T11:00:00Z"}`)

	c := testCoordinator(cfg)
	err := c.Run(context.Background(), Options{})
	require.ErrorIs(t, err, ErrLockHeld)
	assert.Contains(t, err.Error(), "other")

	// nothing was generated or persisted
	entries, readErr := os.ReadDir(cfg.Archive.Dest)
	require.NoError(t, readErr)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"build.lock"}, names)
}

func TestDeleteMarkerRebuildMatchesFull(t *testing.T) {
	cfg := setupArchive(t)
	c := testCoordinator(cfg)
	require.NoError(t, c.Run(context.Background(), Options{}))

	first := snapshotPages(t, cfg.Archive.Dest)
	require.NotEmpty(t, first)

	// removing the marker forces the next run to regenerate everything
	require.NoError(t, os.Remove(cfg.MarkerPath()))
	c2 := testCoordinator(cfg)
	require.NoError(t, c2.Run(context.Background(), Options{}))

	assert.Equal(t, first, snapshotPages(t, cfg.Archive.Dest))
}

func TestIncrementalRunSkipsUnchangedPages(t *testing.T) {
	cfg := setupArchive(t)
	c := testCoordinator(cfg)
	require.NoError(t, c.Run(context.Background(), Options{}))

	// plant a sentinel; an unchanged tree must not rewrite the dir page
	sentinel := filepath.Join(cfg.Archive.Dest, "if-archiveXgamesXzcode.html")
	writeTestFile(t, sentinel, "sentinel")

	c2 := testCoordinator(cfg)
	require.NoError(t, c2.Run(context.Background(), Options{}))

	assert.Equal(t, "sentinel", readOutput(t, cfg.Archive.Dest, "if-archiveXgamesXzcode.html"))
	// aggregates are rewritten every run
	assert.NotEqual(t, "sentinel", readOutput(t, cfg.Archive.Dest, "dirlist.html"))
}

func TestExcludeUndocumented(t *testing.T) {
	cfg := setupArchive(t)
	writeTestFile(t, filepath.Join(cfg.Archive.Tree, "if-archive", "games", "stray.dat"), "x")

	c := testCoordinator(cfg)
	require.NoError(t, c.Run(context.Background(), Options{ExcludeUndocumented: true}))
	page := readOutput(t, cfg.Archive.Dest, "if-archiveXgames.html")
	assert.NotContains(t, page, "stray.dat")

	require.NoError(t, os.Remove(cfg.MarkerPath()))
	c2 := testCoordinator(cfg)
	require.NoError(t, c2.Run(context.Background(), Options{}))
	page = readOutput(t, cfg.Archive.Dest, "if-archiveXgames.html")
	assert.Contains(t, page, "stray.dat")
}

func TestSymlinkAliasInheritsChecksums(t *testing.T) {
	cfg := setupArchive(t)
	zcode := filepath.Join(cfg.Archive.Tree, "if-archive", "games", "zcode")
	require.NoError(t, os.Symlink("zork.z5", filepath.Join(zcode, "alias.z5")))

	c := testCoordinator(cfg)
	require.NoError(t, c.Run(context.Background(), Options{}))

	xml := readOutput(t, cfg.Archive.Dest, "Master-Index.xml")
	aliasBlock := xmlFileBlock(t, xml, "alias.z5")
	targetBlock := xmlFileBlock(t, xml, "zork.z5")

	// the link carries the target's description and its digests
	assert.Contains(t, aliasBlock, "The great underground empire.")
	targetMD5 := xmlElement(t, targetBlock, "md5")
	require.NotEmpty(t, targetMD5)
	assert.Equal(t, targetMD5, xmlElement(t, aliasBlock, "md5"))
	assert.Equal(t, xmlElement(t, targetBlock, "sha512"), xmlElement(t, aliasBlock, "sha512"))
}

func TestEditedDocumentRegeneratesPages(t *testing.T) {
	cfg := setupArchive(t)
	c := testCoordinator(cfg)
	require.NoError(t, c.Run(context.Background(), Options{}))

	revised := strings.Replace(sampleDocument,
		"The great underground empire.", "Revised description text.", 1)
	writeTestFile(t, cfg.Archive.IndexDocument, revised)

	c2 := testCoordinator(cfg)
	require.NoError(t, c2.Run(context.Background(), Options{}))

	page := readOutput(t, cfg.Archive.Dest, "if-archiveXgamesXzcode.html")
	assert.Contains(t, page, "Revised description text.")
	assert.NotContains(t, page, "The great underground empire.")
}

func TestDeletedFileRegeneratesDirectory(t *testing.T) {
	cfg := setupArchive(t)
	c := testCoordinator(cfg)
	require.NoError(t, c.Run(context.Background(), Options{}))
	assert.Contains(t, readOutput(t, cfg.Archive.Dest, "if-archiveXgames.html"), "readme.txt")

	require.NoError(t, os.Remove(filepath.Join(cfg.Archive.Tree, "if-archive", "games", "readme.txt")))

	c2 := testCoordinator(cfg)
	require.NoError(t, c2.Run(context.Background(), Options{}))

	page := readOutput(t, cfg.Archive.Dest, "if-archiveXgames.html")
	assert.NotContains(t, page, "readme.txt")
	assert.NotContains(t, readOutput(t, cfg.Archive.Dest, "date.html"), "readme.txt")
}

func TestRunWithoutMetricsRecorder(t *testing.T) {
	cfg := setupArchive(t)
	c := &Coordinator{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return buildNow },
	}
	require.NoError(t, c.Run(context.Background(), Options{}))
}

func readOutput(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

// xmlFileBlock returns the manifest fragment for the named file.
func xmlFileBlock(t *testing.T, xml, name string) string {
	t.Helper()
	start := strings.Index(xml, "<name>"+name+"</name>")
	require.GreaterOrEqual(t, start, 0, "no manifest entry for %s", name)
	end := strings.Index(xml[start:], "</file>")
	require.GreaterOrEqual(t, end, 0)
	return xml[start : start+end]
}

// xmlElement extracts the text of the first named element in a fragment.
func xmlElement(t *testing.T, fragment, tag string) string {
	t.Helper()
	openTag, closeTag := "<"+tag+">", "</"+tag+">"
	start := strings.Index(fragment, openTag)
	if start < 0 {
		return ""
	}
	rest := fragment[start+len(openTag):]
	end := strings.Index(rest, closeTag)
	require.GreaterOrEqual(t, end, 0)
	return rest[:end]
}

// snapshotPages reads every generated page, keyed by name. State files are
// skipped since the cache is rebuilt each run.
func snapshotPages(t *testing.T, dest string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".html") && !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		out[e.Name()] = readOutput(t, dest, e.Name())
	}
	return out
}
