package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/archtools/archidx/internal/metrics"
	"github.com/archtools/archidx/internal/model"
)

// ComputeFile streams the file once and returns hex md5 and sha512 digests.
func ComputeFile(path string) (md5hex, sha512hex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	h5 := md5.New()
	h512 := sha512.New()
	if _, err := io.Copy(io.MultiWriter(h5, h512), f); err != nil {
		return "", "", err
	}
	return hex.EncodeToString(h5.Sum(nil)), hex.EncodeToString(h512.Sum(nil)), nil
}

// Populate fills the digests of every regular file entry in the tree,
// serving them from cache when size and mtime match and recomputing
// otherwise. Hashing runs on workers goroutines; cache writes are
// serialized inside the cache. A file that vanishes or becomes unreadable
// between stat and hash is a soft per-entry condition: its digests stay
// empty and the build continues. File symlinks are not hashed; they take
// their target's digests once hashing completes.
func Populate(ctx context.Context, cache *Cache, treeDir string, tree *model.Tree, workers int, rec metrics.Recorder, logger *slog.Logger) (hashed int, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var hashedCount int64
	var countMu sync.Mutex

	for _, dir := range tree.Dirs {
		for _, entry := range dir.Files {
			if !entry.HasStat || entry.IsLink {
				continue
			}
			entry := entry
			realPath := filepath.Join(treeDir, filepath.FromSlash(entry.Path))
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				size, mtime := entry.Size, entry.ModTime.Unix()
				if d5, d512, ok := cache.Lookup(entry.Path, size, mtime); ok {
					entry.MD5, entry.SHA512 = d5, d512
					rec.CacheHit()
					return nil
				}
				logger.Debug("computing checksums", "path", entry.Path)
				d5, d512, err := ComputeFile(realPath)
				if err != nil {
					logger.Warn("cannot hash file", "path", entry.Path, "error", err)
					return nil
				}
				entry.MD5, entry.SHA512 = d5, d512
				cache.Put(Record{Path: entry.Path, Size: size, MTime: mtime, MD5: d5, SHA512: d512})
				rec.FileHashed()
				countMu.Lock()
				hashedCount++
				countMu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return int(hashedCount), err
	}

	// Link entries show their target's digests, which exist only now.
	model.InheritLinkDigests(tree)
	return int(hashedCount), nil
}
