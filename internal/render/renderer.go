package render

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/archtools/archidx/internal/metrics"
	"github.com/archtools/archidx/internal/model"
	"github.com/archtools/archidx/internal/plan"
)

// feedLimit caps the number of items in the recent-additions feed.
const feedLimit = 50

// Renderer writes the generated pages, listings, manifest and feed into
// Dest. Per-directory pages and date listings honor the build plan;
// dirlist.html, Master-Index.xml and index-feed.xml are always rewritten
// since any change anywhere can affect them.
type Renderer struct {
	Dest      string
	Templates *TemplateSet
	Metrics   metrics.Recorder
	Logger    *slog.Logger
	Now       time.Time
}

type dirPageData struct {
	Site SiteView
	Dir  *DirView
}

type dateListData struct {
	Site       SiteView
	WindowName string
	Files      []*FileView
}

type dirListData struct {
	Site SiteView
	Dirs []*DirView
}

type feedItem struct {
	NameXML string
	Href    string
	PathXML string
	PubDate string
	DescXML string
}

type feedData struct {
	Site      SiteView
	BuildDate string
	Items     []feedItem
}

// Render projects the resolved model and writes every output the plan
// calls for. Returns the names of the pages written, relative to Dest.
func (r *Renderer) Render(res *model.Resolved, p *plan.Plan, site SiteView) ([]string, error) {
	site.Generated = nowString(r.Now)
	vs, err := buildViews(res, site)
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	var written []string
	for _, dv := range vs.dirs {
		if !p.NeedDir(dv.Path) {
			continue
		}
		name := dv.XName + ".html"
		if err := r.renderFile(name, "dirpage", dirPageData{Site: vs.site, Dir: dv}); err != nil {
			return written, err
		}
		written = append(written, name)
	}

	for _, w := range plan.Windows {
		if !p.NeedWindow(w.Key) {
			continue
		}
		name := "date.html"
		if w.Key != 0 {
			name = fmt.Sprintf("date_%d.html", w.Key)
		}
		data := dateListData{Site: vs.site, Files: vs.files}
		if w.Span > 0 {
			data.WindowName = w.Name
			data.Files = cutWindow(vs.files, r.Now.Add(-w.Span))
		}
		if err := r.renderFile(name, "datelist", data); err != nil {
			return written, err
		}
		written = append(written, name)
	}

	for name, tmpl := range map[string]string{
		"dirlist.html":     "dirlist",
		"Master-Index.xml": "xml",
	} {
		if err := r.renderFile(name, tmpl, dirListData{Site: vs.site, Dirs: vs.dirs}); err != nil {
			return written, err
		}
	}
	if err := r.renderFile("index-feed.xml", "feed", r.feedData(vs)); err != nil {
		return written, err
	}
	written = append(written, "dirlist.html", "Master-Index.xml", "index-feed.xml")

	r.Logger.Info("rendered output", "pages", len(written), "dirs", len(vs.dirs), "files", len(vs.files))
	return written, nil
}

// cutWindow returns the prefix of the date-sorted file list whose
// timestamps fall at or after the cutoff.
func cutWindow(files []*FileView, cutoff time.Time) []*FileView {
	cut := cutoff.Unix()
	for i, f := range files {
		if f.Timestamp < cut {
			return files[:i]
		}
	}
	return files
}

func (r *Renderer) feedData(vs *viewSet) feedData {
	fd := feedData{
		Site:      vs.site,
		BuildDate: r.Now.UTC().Format(time.RFC1123Z),
	}
	for _, f := range vs.files {
		if len(fd.Items) >= feedLimit {
			break
		}
		fd.Items = append(fd.Items, feedItem{
			NameXML: f.NameXML,
			Href:    f.Href,
			PathXML: f.PathXML,
			PubDate: time.Unix(f.Timestamp, 0).UTC().Format(time.RFC1123Z),
			DescXML: f.DescXML,
		})
	}
	return fd
}

// renderFile executes one template into a buffer and writes it atomically
// under Dest. Rendering to the buffer first keeps a template error from
// leaving a truncated page behind.
func (r *Renderer) renderFile(name, tmpl string, data any) error {
	var buf bytes.Buffer
	if err := r.Templates.root.ExecuteTemplate(&buf, tmpl, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	dest := filepath.Join(r.Dest, name)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	r.Metrics.PageRendered()
	r.Logger.Debug("wrote page", "name", name)
	return nil
}
