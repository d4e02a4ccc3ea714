// Package fstree walks the served archive tree and produces the
// filesystem-authoritative skeleton of the model: every directory and file
// actually present, with size, modification time and symlink targets.
package fstree

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/archtools/archidx/internal/model"
)

// Walker scans the archive tree rooted at TreeDir/RootName.
type Walker struct {
	// TreeDir is the directory containing the archive root.
	TreeDir string
	// RootName is the archive root directory name ("if-archive").
	RootName string
	// Reserved lists canonical paths (or path prefixes) that are
	// administratively reserved and never walked.
	Reserved []string
	Logger   *slog.Logger
}

// Walk scans the tree and returns a model populated with filesystem ground
// truth. Per-directory Index source fragments and dotfiles are skipped.
func (w *Walker) Walk() (*model.Tree, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := w.RootName
	if root == "" {
		root = "if-archive"
	}
	if _, err := os.Stat(filepath.Join(w.TreeDir, root)); err != nil {
		return nil, fmt.Errorf("archive root: %w", err)
	}

	tree := model.NewTree(root)
	if err := w.scanDir(tree, root, logger); err != nil {
		return nil, err
	}
	return tree, nil
}

func (w *Walker) scanDir(tree *model.Tree, dirPath string, logger *slog.Logger) error {
	dir := tree.EnsureDir(dirPath)
	realPath := filepath.Join(w.TreeDir, filepath.FromSlash(dirPath))

	if info, err := os.Stat(realPath); err == nil {
		// The directory's own mtime moves on adds, deletes and renames,
		// which per-file mtimes cannot reveal.
		dir.ModTime = info.ModTime()
	}

	ents, err := os.ReadDir(realPath)
	if err != nil {
		// Concurrent mutation of the archive is tolerated: a directory
		// vanishing mid-walk is a soft condition.
		logger.Warn("cannot read directory", "path", dirPath, "error", err)
		return nil
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Name() < ents[j].Name() })

	for _, ent := range ents {
		name := ent.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childPath := dirPath + "/" + name
		if w.reserved(childPath) {
			logger.Debug("skipping reserved subtree", "path", childPath)
			continue
		}

		if ent.Type()&os.ModeSymlink != 0 {
			w.scanSymlink(dir, childPath, name, logger)
			continue
		}

		if ent.IsDir() {
			if err := w.scanDir(tree, childPath, logger); err != nil {
				return err
			}
			continue
		}

		if name == "Index" {
			// Per-directory source fragments of the description document.
			continue
		}
		info, err := ent.Info()
		if err != nil {
			logger.Warn("file vanished during walk", "path", childPath, "error", err)
			continue
		}
		dir.AddFile(&model.FileEntry{
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			HasStat: true,
		})
	}
	return nil
}

func (w *Walker) scanSymlink(dir *model.DirectoryNode, childPath, name string, logger *slog.Logger) {
	realPath := filepath.Join(w.TreeDir, filepath.FromSlash(childPath))
	target, err := os.Readlink(realPath)
	if err != nil {
		logger.Warn("cannot read symlink", "path", childPath, "error", err)
		return
	}
	target = strings.TrimSuffix(target, "/")

	// Stat through the link to classify it and pick up the target's
	// size and date. A dangling link is listed with the link fields only.
	info, err := os.Stat(realPath)
	entry := &model.FileEntry{
		Name:       name,
		IsLink:     true,
		LinkTarget: target,
	}
	if err != nil {
		logger.Warn("dangling symlink", "path", childPath, "target", target)
		dir.AddFile(entry)
		return
	}
	if info.IsDir() {
		entry.IsDirLink = true
		entry.LinkDirPath = model.NormalizeLink(dir.Path, target)
	}
	entry.Size = info.Size()
	entry.ModTime = info.ModTime()
	entry.HasStat = true
	dir.AddFile(entry)
}

func (w *Walker) reserved(path string) bool {
	for _, r := range w.Reserved {
		if path == r || strings.HasPrefix(path, r+"/") || filepath.Base(path) == r {
			return true
		}
	}
	return false
}
