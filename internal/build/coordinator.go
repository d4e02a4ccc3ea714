// Package build sequences one index build: lock, parse, walk, resolve,
// checksum, plan, render, commit, notify.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/archtools/archidx/internal/checksum"
	"github.com/archtools/archidx/internal/config"
	"github.com/archtools/archidx/internal/fstree"
	"github.com/archtools/archidx/internal/indexdoc"
	"github.com/archtools/archidx/internal/metrics"
	"github.com/archtools/archidx/internal/model"
	"github.com/archtools/archidx/internal/notify"
	"github.com/archtools/archidx/internal/plan"
	"github.com/archtools/archidx/internal/render"
)

// ErrCommitFailed marks a failure after rendering, while persisting the
// checksum cache or the build marker. Outputs may already be updated; the
// stale marker makes the next run regenerate them.
var ErrCommitFailed = errors.New("state commit failed")

// exemptListFile is the lib-dir list of path prefixes that may legitimately
// lack index entries.
const exemptListFile = "no-index-entries"

// Options adjusts a single build run.
type Options struct {
	// ForceFull regenerates every page regardless of the marker.
	ForceFull bool
	// ExcludeUndocumented omits on-disk files with no index entry instead
	// of listing them bare.
	ExcludeUndocumented bool
	// NotifySearch triggers the search reindex call after a successful
	// build.
	NotifySearch bool
}

// Coordinator runs builds against one configuration.
type Coordinator struct {
	Config  *config.Config
	Metrics metrics.Recorder
	Logger  *slog.Logger
	// Client is used for outbound notifications. Nil gets a default.
	Client *http.Client
	// Now stubs the clock in tests. Nil means time.Now.
	Now func() time.Time

	// cache is carried from assemble to the commit step. Run is not
	// reentrant, matching the exclusive build lock.
	cache *checksum.Cache
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run executes one full build. On any error the persisted state (cache,
// marker) is left as the previous run wrote it, except for commit failures
// after rendering, which are reported as ErrCommitFailed.
func (c *Coordinator) Run(ctx context.Context, opts Options) error {
	cfg := c.Config
	if c.Metrics == nil {
		c.Metrics = metrics.NoopRecorder{}
	}
	start := c.now()

	lock, err := AcquireLock(cfg.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			c.Logger.Error("lock release failed", "error", err)
		}
	}()
	logger := c.Logger.With("build", lock.ID())
	logger.Info("build started", "tree", cfg.Archive.Tree, "force_full", opts.ForceFull)

	res, err := c.assemble(ctx, opts, logger)
	if err != nil {
		return err
	}

	marker := &plan.Marker{Path: cfg.MarkerPath()}
	last, haveMarker, err := marker.Read()
	if err != nil {
		return fmt.Errorf("read build marker: %w", err)
	}

	force := opts.ForceFull
	if !force && haveMarker {
		// A curator edit to the index document can change descriptions in
		// any directory; no per-file signal covers that.
		if info, err := os.Stat(cfg.Archive.IndexDocument); err != nil || info.ModTime().After(last) {
			logger.Info("index document changed since last build, regenerating all pages")
			force = true
		}
	}

	now := c.now()
	p := plan.Compute(res.Tree, last, haveMarker, force, now)

	templates, err := render.LoadTemplates(cfg.Archive.Lib)
	if err != nil {
		return err
	}
	renderer := &render.Renderer{
		Dest:      cfg.Archive.Dest,
		Templates: templates,
		Metrics:   c.Metrics,
		Logger:    logger,
		Now:       now,
	}
	site := render.SiteView{Title: cfg.Site.Title, BaseURL: cfg.Site.BaseURL}
	written, err := renderer.Render(res, p, site)
	if err != nil {
		return err
	}

	if err := c.cache.Commit(); err != nil {
		return fmt.Errorf("%w: checksum cache: %v", ErrCommitFailed, err)
	}
	if err := marker.Write(now); err != nil {
		return fmt.Errorf("%w: build marker: %v", ErrCommitFailed, err)
	}

	if err := normalizePermissions(cfg.Archive.Dest); err != nil {
		logger.Warn("permission normalization incomplete", "error", err)
	}

	c.Metrics.BuildDuration(c.now().Sub(start))
	logger.Info("build finished", "pages", len(written), "elapsed", c.now().Sub(start).Round(time.Millisecond))

	notifier := notify.New(cfg.Notify, c.Client, logger)
	if opts.NotifySearch {
		notifier.SearchReindex(ctx)
	}
	notifier.PurgePages(ctx, written)
	return nil
}

// assemble runs the read-only half of the pipeline: parse, walk, resolve,
// checksum. It leaves the opened cache on the coordinator for Commit.
func (c *Coordinator) assemble(ctx context.Context, opts Options, logger *slog.Logger) (*model.Resolved, error) {
	cfg := c.Config

	doc, err := os.Open(cfg.Archive.IndexDocument)
	if err != nil {
		return nil, fmt.Errorf("open index document: %w", err)
	}
	parser := &indexdoc.Parser{RootName: cfg.Archive.RootName}
	sections, err := parser.Parse(doc)
	doc.Close()
	if err != nil {
		return nil, err
	}
	logger.Info("index document parsed", "sections", len(sections))

	walker := &fstree.Walker{
		TreeDir:  cfg.Archive.Tree,
		RootName: cfg.Archive.RootName,
		Reserved: cfg.Build.Reserved,
		Logger:   logger,
	}
	tree, err := walker.Walk()
	if err != nil {
		return nil, err
	}

	resolver := &model.Resolver{Logger: logger}
	res := resolver.Resolve(tree, sections)
	for i := 0; i < resolver.Dropped; i++ {
		c.Metrics.EntryDropped()
	}

	if err := c.handleUndocumented(res.Tree, opts.ExcludeUndocumented, logger); err != nil {
		return nil, err
	}

	cache, err := checksum.Open(cfg.CachePath())
	if err != nil {
		return nil, fmt.Errorf("open checksum cache: %w", err)
	}
	hashed, err := checksum.Populate(ctx, cache, cfg.Archive.Tree, res.Tree, cfg.Build.Workers, c.Metrics, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("checksums populated", "hashed", hashed, "cached", cache.Len())
	c.cache = cache
	return res, nil
}

// handleUndocumented warns about (or removes) files the index document
// never mentions, honoring the exemption prefix list.
func (c *Coordinator) handleUndocumented(tree *model.Tree, exclude bool, logger *slog.Logger) error {
	exempt, err := fstree.LoadExemptList(filepath.Join(c.Config.Archive.Lib, exemptListFile))
	if err != nil {
		return err
	}
	for _, dir := range tree.SortedDirs() {
		var drop []string
		for _, f := range dir.Files {
			if f.Documented || exempt.Exempt(f.Path) {
				continue
			}
			if exclude {
				drop = append(drop, f.Name)
				continue
			}
			logger.Warn("file has no index entry", "path", f.Path)
		}
		for _, name := range drop {
			dir.RemoveFile(name)
		}
	}
	return nil
}

// normalizePermissions makes every generated page world-readable. The web
// server runs as a different user than the build.
func normalizePermissions(dest string) error {
	return filepath.WalkDir(dest, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if d.IsDir() {
			mode = 0o755
		}
		return os.Chmod(path, mode)
	})
}
