package model

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/archtools/archidx/internal/indexdoc"
)

// IdentifierKeys are the metadata keys whose values act as cross-reference
// identifiers for alias clustering.
var IdentifierKeys = []string{"tuid", "ifwiki"}

// undocumentedOrder sorts entries without a section after every documented
// one while keeping path order among themselves.
const undocumentedOrder = 1 << 30

// Resolver merges parsed sections into a filesystem-derived tree, producing
// the authoritative model for rendering.
type Resolver struct {
	Logger *slog.Logger

	// Dropped counts document entries that named paths absent on disk.
	Dropped int
}

// Resolved is the output of a resolution pass.
type Resolved struct {
	Tree     *Tree
	Clusters *Clusters
}

// Resolve applies sections to tree in document order. The filesystem is
// authoritative for existence; the document is authoritative for metadata
// and descriptions only.
func (r *Resolver) Resolve(tree *Tree, sections []indexdoc.Section) *Resolved {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for _, sec := range sections {
		switch sec.Kind {
		case indexdoc.KindDirectory:
			r.applyDirectory(tree, sec, logger)
		case indexdoc.KindFile:
			r.applyFile(tree, sec, logger)
		}
	}

	r.finishEntries(tree)
	r.resolveSymlinks(tree, logger)

	var all []*FileEntry
	for _, d := range tree.Dirs {
		all = append(all, d.Files...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Order != all[j].Order {
			return all[i].Order < all[j].Order
		}
		return all[i].Path < all[j].Path
	})

	return &Resolved{Tree: tree, Clusters: buildClusters(all)}
}

func (r *Resolver) applyDirectory(tree *Tree, sec indexdoc.Section, logger *slog.Logger) {
	dir, ok := tree.Dirs[sec.Path]
	if !ok {
		logger.Warn("index entry for missing directory", "path", sec.Path)
		r.Dropped++
		return
	}
	// A path may be mentioned at several unrelated points in the document;
	// the first directory section wins, later ones append their text.
	if dir.Metadata == nil {
		dir.Metadata = sec.Metadata
	} else {
		dir.Metadata.Merge(sec.Metadata)
	}
	if dir.Description == "" {
		dir.Description = sec.Description
	} else if sec.Description != "" {
		dir.Description += "\n\n" + sec.Description
	}
}

func (r *Resolver) applyFile(tree *Tree, sec indexdoc.Section, logger *slog.Logger) {
	entry := tree.Lookup(sec.Path)
	if entry == nil {
		logger.Warn("index entry without file", "path", sec.Path)
		r.Dropped++
		return
	}

	if sec.SubDepth == 0 {
		// Declared in the file's own directory section: the primary record.
		entry.Documented = true
		if entry.Metadata == nil {
			entry.Metadata = sec.Metadata
		} else {
			entry.Metadata.Merge(sec.Metadata)
		}
		if entry.Description == "" {
			entry.Description = sec.Description
		}
		if entry.Order == 0 || entry.Order == undocumentedOrder {
			entry.Order = sec.Order + 1
		}
		entry.Identifiers = append(entry.Identifiers, declaredIdentifiers(sec.Metadata)...)
		return
	}

	// Declared from an ancestor section naming a nested sub-path. The
	// description surfaces as a provenance-tagged inherited entry on the
	// file itself and as a mention at every intermediate directory level.
	// It never overwrites a description declared closer to the file.
	entry.Documented = true
	entry.Inherited = append(entry.Inherited, InheritedDescription{
		SourcePath:  sec.Dir,
		Depth:       sec.SubDepth,
		Description: sec.Description,
		Metadata:    sec.Metadata,
	})
	entry.Identifiers = append(entry.Identifiers, declaredIdentifiers(sec.Metadata)...)
	if entry.Order == 0 || entry.Order == undocumentedOrder {
		entry.Order = sec.Order + 1
	}

	rel := strings.TrimPrefix(sec.Path, sec.Dir+"/")
	segs := strings.Split(rel, "/")
	interm := sec.Dir
	for _, seg := range segs[:len(segs)-1] {
		interm = interm + "/" + seg
		if d, ok := tree.Dirs[interm]; ok {
			d.Mentions = append(d.Mentions, Mention{
				Path:        sec.Path,
				SourcePath:  sec.Dir,
				Description: sec.Description,
			})
		}
	}
}

// finishEntries orders inherited chains shallowest-ancestor-first, fills
// fallback descriptions, deduplicates identifiers, and assigns orders to
// undocumented entries.
func (r *Resolver) finishEntries(tree *Tree) {
	for _, d := range tree.Dirs {
		for _, f := range d.Files {
			sort.SliceStable(f.Inherited, func(i, j int) bool {
				return len(f.Inherited[i].SourcePath) < len(f.Inherited[j].SourcePath)
			})
			if f.Description == "" && len(f.Inherited) > 0 {
				// No primary declaration: display the nearest ancestor's
				// text. The chain itself keeps every entry.
				f.Description = f.Inherited[len(f.Inherited)-1].Description
			}
			f.Identifiers = dedupe(f.Identifiers)
			if !f.Documented && f.Order == 0 {
				f.Order = undocumentedOrder
			}
		}
	}
}

// resolveSymlinks copies descriptions, metadata and identifiers from
// symlink targets onto the link entries, which keep their own tree
// location. A target outside the tree degrades to a local-only record.
// Digests are copied separately by InheritLinkDigests once they exist.
func (r *Resolver) resolveSymlinks(tree *Tree, logger *slog.Logger) {
	for _, d := range tree.Dirs {
		for _, f := range d.Files {
			if !f.IsLink || f.IsDirLink {
				continue
			}
			targetPath := NormalizeLink(d.Path, f.LinkTarget)
			target := tree.Lookup(targetPath)
			if target == nil || target == f {
				logger.Debug("symlink target not in tree", "path", f.Path, "target", targetPath)
				continue
			}
			if f.Description == "" {
				f.Description = target.Description
			}
			if f.Metadata == nil {
				f.Metadata = target.Metadata
			}
			f.Identifiers = dedupe(append(f.Identifiers, target.Identifiers...))
		}
	}
}

// InheritLinkDigests copies checksums from symlink targets onto file link
// entries. It must run after checksum population: at resolve time the
// targets have no digests yet.
func InheritLinkDigests(tree *Tree) {
	for _, d := range tree.Dirs {
		for _, f := range d.Files {
			if !f.IsLink || f.IsDirLink || f.MD5 != "" {
				continue
			}
			target := tree.Lookup(NormalizeLink(d.Path, f.LinkTarget))
			if target == nil || target == f {
				continue
			}
			f.MD5, f.SHA512 = target.MD5, target.SHA512
		}
	}
}

func declaredIdentifiers(meta *indexdoc.MetadataBlock) []string {
	var ids []string
	for _, key := range IdentifierKeys {
		ids = append(ids, meta.Get(key)...)
	}
	return ids
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := vals[:0]
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// NormalizeLink resolves a relative symlink target against the directory
// containing the link, staying within canonical path space.
func NormalizeLink(dir, target string) string {
	target = strings.TrimSuffix(target, "/")
	if target == "" {
		return dir
	}
	parts := strings.Split(dir, "/")
	for _, seg := range strings.Split(target, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) > 1 {
				parts = parts[:len(parts)-1]
			}
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}
