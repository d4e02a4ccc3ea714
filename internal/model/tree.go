// Package model holds the in-memory archive model built on every run: the
// directory tree mirrored from the filesystem, overlaid with the metadata
// and descriptions declared in the index document.
package model

import (
	"sort"
	"strings"
	"time"

	"github.com/archtools/archidx/internal/indexdoc"
)

// Tree is the authoritative archive model for one build. It is rebuilt from
// scratch every run and never persisted.
type Tree struct {
	Root *DirectoryNode
	// Dirs maps canonical path to node. Exactly one node exists per path.
	Dirs map[string]*DirectoryNode
}

// NewTree creates a tree containing only the root directory.
func NewTree(rootName string) *Tree {
	root := &DirectoryNode{Path: rootName, Name: rootName}
	return &Tree{
		Root: root,
		Dirs: map[string]*DirectoryNode{rootName: root},
	}
}

// EnsureDir returns the node for path, creating it and any missing ancestors.
// Parent/child edges always mirror the path structure regardless of the
// order directories are added in.
func (t *Tree) EnsureDir(path string) *DirectoryNode {
	if d, ok := t.Dirs[path]; ok {
		return d
	}
	d := &DirectoryNode{Path: path, Name: path}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		d.Name = path[i+1:]
		parent := t.EnsureDir(path[:i])
		d.Parent = parent
		parent.Subdirs = append(parent.Subdirs, d)
	}
	t.Dirs[path] = d
	return d
}

// Lookup returns the file entry at path, if any.
func (t *Tree) Lookup(path string) *FileEntry {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return nil
	}
	dir, ok := t.Dirs[path[:i]]
	if !ok {
		return nil
	}
	return dir.File(path[i+1:])
}

// SortedDirs returns all directories ordered by lowercased path.
func (t *Tree) SortedDirs() []*DirectoryNode {
	dirs := make([]*DirectoryNode, 0, len(t.Dirs))
	for _, d := range t.Dirs {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool {
		return strings.ToLower(dirs[i].Path) < strings.ToLower(dirs[j].Path)
	})
	return dirs
}

// DirectoryNode is one canonical archive directory.
type DirectoryNode struct {
	Path   string
	Name   string
	Parent *DirectoryNode // non-owning

	// ModTime is the directory's own modification time, which reflects
	// entry additions, deletions and renames.
	ModTime time.Time

	Subdirs []*DirectoryNode
	Files   []*FileEntry

	Metadata    *indexdoc.MetadataBlock
	Description string

	// Mentions lists descriptions that ancestor sections declared for
	// paths below this directory, surfaced here as non-owning references.
	Mentions []Mention
}

// File returns the named child file entry, or nil.
func (d *DirectoryNode) File(name string) *FileEntry {
	for _, f := range d.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// AddFile appends a file entry and links it to the directory.
func (d *DirectoryNode) AddFile(f *FileEntry) {
	f.Dir = d
	f.Path = d.Path + "/" + f.Name
	d.Files = append(d.Files, f)
}

// RemoveFile drops the named entry. Used when undocumented files are
// excluded from the index.
func (d *DirectoryNode) RemoveFile(name string) {
	for i, f := range d.Files {
		if f.Name == name {
			d.Files = append(d.Files[:i], d.Files[i+1:]...)
			return
		}
	}
}

// FileCount reports the number of file entries actually present, which is
// filesystem ground truth regardless of what the document claims.
func (d *DirectoryNode) FileCount() int { return len(d.Files) }

// SubdirCount reports the number of child directories.
func (d *DirectoryNode) SubdirCount() int { return len(d.Subdirs) }

// SortedFiles returns the files ordered by lowercased name.
func (d *DirectoryNode) SortedFiles() []*FileEntry {
	files := make([]*FileEntry, len(d.Files))
	copy(files, d.Files)
	sort.Slice(files, func(i, j int) bool {
		a, b := strings.ToLower(files[i].Name), strings.ToLower(files[j].Name)
		if a != b {
			return a < b
		}
		return files[i].Name < files[j].Name
	})
	return files
}

// SortedSubdirs returns the child directories ordered by lowercased name.
func (d *DirectoryNode) SortedSubdirs() []*DirectoryNode {
	subs := make([]*DirectoryNode, len(d.Subdirs))
	copy(subs, d.Subdirs)
	sort.Slice(subs, func(i, j int) bool {
		return strings.ToLower(subs[i].Name) < strings.ToLower(subs[j].Name)
	})
	return subs
}

// FileEntry is one file actually present on disk (or explicitly symlinked).
type FileEntry struct {
	Name string
	Path string
	Dir  *DirectoryNode // owning

	// Filesystem ground truth, never taken from the description text.
	Size    int64
	ModTime time.Time
	HasStat bool

	// Lazily populated digests. Empty when hashing failed.
	MD5    string
	SHA512 string

	// Symlink fields. LinkTarget is the raw relative target; for directory
	// symlinks LinkDirPath is the normalized canonical path of the target.
	IsLink      bool
	IsDirLink   bool
	LinkTarget  string
	LinkDirPath string

	Metadata    *indexdoc.MetadataBlock
	Description string
	// Documented is false for files found on disk with no section in the
	// index document.
	Documented bool

	// Inherited is the ordered chain of ancestor-declared descriptions for
	// this path, shallowest ancestor first. Entries stay separate and keep
	// their provenance; they are never concatenated.
	Inherited []InheritedDescription

	// Identifiers are the declared external identifier values
	// (tuid, ifwiki, ...) used for alias clustering.
	Identifiers []string

	// Order is the position of the entry's primary section in the document,
	// used for deterministic tie-breaking. Undocumented entries get a large
	// order after all documented ones.
	Order int
}

// InheritedDescription is one provenance-tagged description attached to a
// path from an ancestor-level section.
type InheritedDescription struct {
	// SourcePath is the directory whose section declared the description.
	SourcePath string
	// Depth is the number of levels between SourcePath and the entry.
	Depth       int
	Description string
	Metadata    *indexdoc.MetadataBlock
}

// Mention is a non-owning reference surfaced at an intermediate directory
// for a deeper path that an ancestor section described.
type Mention struct {
	// Path is the full canonical path of the mentioned entry.
	Path string
	// SourcePath is the directory whose section declared it.
	SourcePath  string
	Description string
}
