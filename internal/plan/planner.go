package plan

import (
	"time"

	"github.com/archtools/archidx/internal/model"
)

// Window is one time-windowed global listing.
type Window struct {
	// Key numbers the output file: 0 is the all-time listing date.html,
	// higher keys produce date_<key>.html.
	Key  int
	Name string
	Span time.Duration
}

// Windows are the global chronological listings, widest first. The zero
// span means all-time.
var Windows = []Window{
	{Key: 0, Name: "all", Span: 0},
	{Key: 1, Name: "week", Span: 7 * 24 * time.Hour},
	{Key: 2, Name: "month", Span: 31 * 24 * time.Hour},
	{Key: 3, Name: "three months", Span: 93 * 24 * time.Hour},
	{Key: 4, Name: "year", Span: 366 * 24 * time.Hour},
}

// Plan names the outputs one run must regenerate. The XML manifest, the
// recency feed and the top-level directory map are cheap relative to total
// build time and their consistency matters most, so they are always
// regenerated and carry no flags here.
type Plan struct {
	// Full indicates every output is regenerated.
	Full bool
	// Dirs holds the canonical paths of directory pages to regenerate.
	Dirs map[string]bool
	// WindowKeys holds the keys of date listings to regenerate.
	WindowKeys map[int]bool
}

// NeedDir reports whether the directory page for path must be written.
func (p *Plan) NeedDir(path string) bool { return p.Full || p.Dirs[path] }

// NeedWindow reports whether the date listing for key must be written.
func (p *Plan) NeedWindow(key int) bool { return p.Full || p.WindowKeys[key] }

// Compute derives the minimal plan for the resolved tree. A missing marker
// or a forced rebuild bypasses pruning entirely. now is injected so tests
// can simulate elapsed time without touching real files.
func Compute(tree *model.Tree, last time.Time, haveMarker, force bool, now time.Time) *Plan {
	p := &Plan{Dirs: make(map[string]bool), WindowKeys: make(map[int]bool)}
	if force || !haveMarker {
		p.Full = true
		return p
	}

	for _, dir := range tree.Dirs {
		if dir.ModTime.After(last) {
			// The directory itself changed: entries were added, removed or
			// renamed. Removals are invisible to per-file mtimes, so the
			// windowed listings refresh as well.
			p.Dirs[dir.Path] = true
			for _, w := range Windows {
				p.WindowKeys[w.Key] = true
			}
		}
		for _, f := range dir.Files {
			if !f.HasStat {
				continue
			}
			if f.ModTime.After(last) {
				// A new or modified entry invalidates its directory page
				// and every windowed listing it newly appears in.
				p.Dirs[dir.Path] = true
				for _, w := range Windows {
					p.WindowKeys[w.Key] = true
				}
				continue
			}
			// An unchanged entry can still age out of a window between the
			// last run and now, changing that listing's contents.
			for _, w := range Windows {
				if w.Span == 0 {
					continue
				}
				wasIn := !f.ModTime.Before(last.Add(-w.Span))
				isIn := !f.ModTime.Before(now.Add(-w.Span))
				if wasIn && !isIn {
					p.WindowKeys[w.Key] = true
				}
			}
		}
	}
	return p
}
