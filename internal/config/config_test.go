package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
archive:
  tree: /srv/archive/htdocs
  index_document: /srv/archive/htdocs/if-archive/Master-Index
  lib: /srv/archive/lib
  dest: /srv/archive/htdocs/indexes
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "if-archive", cfg.Archive.RootName)
	require.Equal(t, "The Interactive Fiction Archive", cfg.Site.Title)
	require.Equal(t, 4, cfg.Build.Workers)
	require.Equal(t, "/srv/archive/htdocs/indexes/checksum-cache.db", cfg.CachePath())
	require.Equal(t, "/srv/archive/htdocs/indexes/last-build", cfg.MarkerPath())
	require.Equal(t, "/srv/archive/htdocs/indexes/build.lock", cfg.LockPath())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("ARCHIDX_TEST_DEST", "/tmp/out")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
site:
  title: Test Archive
  base_url: https://files.example.org/
archive:
  lib: /srv/archive/lib
  dest: ${ARCHIDX_TEST_DEST}
state:
  lock: /run/archidx.lock
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/out", cfg.Archive.Dest)
	// The base URL loses its trailing slash so joins stay single-slashed.
	require.Equal(t, "https://files.example.org", cfg.Site.BaseURL)
	// Absolute state paths are kept as-is.
	require.Equal(t, "/run/archidx.lock", cfg.LockPath())
}

func TestLoadRejectsMissingDest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("archive:\n  lib: /lib\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
