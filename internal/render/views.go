package render

import (
	"sort"
	"strings"
	"time"

	"github.com/archtools/archidx/internal/indexdoc"
	"github.com/archtools/archidx/internal/model"
)

// MetaKV is one metadata key with its ordered values, escaped for the
// output format it is rendered into.
type MetaKV struct {
	Key    string
	Values []string
}

// InheritedView is one provenance-tagged inherited description, shallowest
// ancestor first.
type InheritedView struct {
	Source     string
	SourceHTML string
	SourceXML  string
	SourceHref string
	Depth      int
	DescHTML   string
	DescXML    string
}

// MentionView is a description an ancestor declared for a deeper path,
// shown on an intermediate directory page.
type MentionView struct {
	Path       string
	Href       string
	Name       string
	Source     string
	SourceHTML string
	DescHTML   string
}

// FileView is the render-ready projection of one file entry. Escaping is
// applied once here; templates emit fields verbatim.
type FileView struct {
	RawName string
	Name    string // HTML-escaped
	NameXML string
	Display string // HTML-escaped with break hints, display only
	Anchor  string
	Path    string
	PathXML string
	Href    string // percent-encoded link target

	HasStat   bool
	Size      int64
	Date      string
	Timestamp int64

	MD5    string
	SHA512 string

	DescHTML  string
	DescXML   string
	HasDesc   bool
	Inherited []InheritedView

	IsLink      bool
	IsDirLink   bool
	LinkTarget  string
	LinkDirPath string
	LinkDirHref string

	Identifiers []string
	MetadataH   []MetaKV // HTML-escaped
	MetadataX   []MetaKV // XML-escaped

	lowerName string
	lowerPath string
}

// DirView is the render-ready projection of one directory.
type DirView struct {
	Path        string
	PathHTML    string
	PathXML     string
	Name        string
	XName       string
	Href        string
	Display     string // escaped path with break hints
	Breadcrumb  string // ancestor links, HTML
	ParentHref  string
	HasParent   bool
	HeaderHTML  string
	HeaderXML   string
	HasHeader   bool
	FileCount   int
	SubdirCount int
	Files       []*FileView
	Subdirs     []*DirView
	Mentions    []MentionView
	MetadataH   []MetaKV
	MetadataX   []MetaKV
}

// SiteView carries page-independent fields into every template.
type SiteView struct {
	Title     string
	BaseURL   string
	Generated string
}

// viewSet is the fully projected model shared by all outputs of one run.
type viewSet struct {
	site  SiteView
	dirs  []*DirView          // sorted by lowercased path
	byDir map[string]*DirView // canonical path -> view
	files []*FileView         // every file with stat data, date-sorted
}

const dateFormat = "02-Jan-2006"

// buildViews projects the resolved model into escaped, sorted view
// structures. All ordering decisions happen here so every output renders
// deterministically.
func buildViews(res *model.Resolved, site SiteView) (*viewSet, error) {
	vs := &viewSet{site: site, byDir: make(map[string]*DirView)}

	for _, dir := range res.Tree.SortedDirs() {
		dv, err := buildDirView(dir, site)
		if err != nil {
			return nil, err
		}
		vs.dirs = append(vs.dirs, dv)
		vs.byDir[dir.Path] = dv
	}

	// Second pass: files and subdir links, now that every directory has a
	// view to point at.
	for _, dir := range res.Tree.SortedDirs() {
		dv := vs.byDir[dir.Path]
		for _, sub := range dir.SortedSubdirs() {
			dv.Subdirs = append(dv.Subdirs, vs.byDir[sub.Path])
		}
		for _, f := range dir.SortedFiles() {
			fv, err := buildFileView(f, res, site)
			if err != nil {
				return nil, err
			}
			dv.Files = append(dv.Files, fv)
			if f.HasStat && !f.IsDirLink {
				vs.files = append(vs.files, fv)
			}
		}
	}

	// Global chronological order: newest first, ties broken by lowercased
	// name then path so runs are reproducible.
	sort.SliceStable(vs.files, func(i, j int) bool {
		a, b := vs.files[i], vs.files[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if a.lowerName != b.lowerName {
			return a.lowerName < b.lowerName
		}
		return a.lowerPath < b.lowerPath
	})
	return vs, nil
}

func buildDirView(dir *model.DirectoryNode, site SiteView) (*DirView, error) {
	headerHTML, err := DescriptionHTML(dir.Description)
	if err != nil {
		return nil, err
	}
	dv := &DirView{
		Path:        dir.Path,
		PathHTML:    EscapeHTML(dir.Path),
		PathXML:     EscapeXML(dir.Path),
		Name:        EscapeHTML(dir.Name),
		XName:       XifyDirPath(dir.Path),
		Href:        XifyDirPath(dir.Path) + ".html",
		Display:     BreakHints(EscapeHTML(dir.Path)),
		Breadcrumb:  breadcrumb(dir.Path),
		HeaderHTML:  headerHTML,
		HeaderXML:   EscapeXML(dir.Description),
		HasHeader:   strings.TrimSpace(dir.Description) != "",
		FileCount:   dir.FileCount(),
		SubdirCount: dir.SubdirCount(),
		MetadataH:   metaViews(dir.Metadata, EscapeHTML),
		MetadataX:   metaViews(dir.Metadata, EscapeXML),
	}
	if dir.Parent != nil {
		dv.HasParent = true
		dv.ParentHref = XifyDirPath(dir.Parent.Path) + ".html"
	}
	for _, m := range dir.Mentions {
		descHTML, err := DescriptionHTML(m.Description)
		if err != nil {
			return nil, err
		}
		name := m.Path[strings.LastIndex(m.Path, "/")+1:]
		dv.Mentions = append(dv.Mentions, MentionView{
			Path:       m.Path,
			Href:       site.BaseURL + "/" + EncodeURLPath(m.Path),
			Name:       EscapeHTML(name),
			Source:     m.SourcePath,
			SourceHTML: EscapeHTML(m.SourcePath),
			DescHTML:   descHTML,
		})
	}
	return dv, nil
}

func buildFileView(f *model.FileEntry, res *model.Resolved, site SiteView) (*FileView, error) {
	descHTML, err := DescriptionHTML(f.Description)
	if err != nil {
		return nil, err
	}
	fv := &FileView{
		RawName:   f.Name,
		Name:      EscapeHTML(f.Name),
		NameXML:   EscapeXML(f.Name),
		Display:   BreakHints(EscapeHTML(f.Name)),
		Anchor:    AnchorID(f.Name),
		Path:      f.Path,
		PathXML:   EscapeXML(f.Path),
		Href:      site.BaseURL + "/" + EncodeURLPath(f.Path),
		HasStat:   f.HasStat,
		Size:      f.Size,
		MD5:       f.MD5,
		SHA512:    f.SHA512,
		DescHTML:  descHTML,
		DescXML:   EscapeXML(f.Description),
		HasDesc:   strings.TrimSpace(f.Description) != "",
		IsLink:    f.IsLink,
		IsDirLink: f.IsDirLink,
		MetadataH: metaViews(f.Metadata, EscapeHTML),
		MetadataX: metaViews(f.Metadata, EscapeXML),
		lowerName: strings.ToLower(f.Name),
		lowerPath: strings.ToLower(f.Path),
	}
	if f.HasStat {
		fv.Date = f.ModTime.UTC().Format(dateFormat)
		fv.Timestamp = f.ModTime.Unix()
	}
	if f.IsLink {
		fv.LinkTarget = EscapeHTML(f.LinkTarget)
	}
	if f.IsDirLink {
		fv.LinkDirPath = f.LinkDirPath
		fv.LinkDirHref = XifyDirPath(f.LinkDirPath) + ".html"
	}
	for _, inh := range f.Inherited {
		ih, err := DescriptionHTML(inh.Description)
		if err != nil {
			return nil, err
		}
		fv.Inherited = append(fv.Inherited, InheritedView{
			Source:     inh.SourcePath,
			SourceHTML: EscapeHTML(inh.SourcePath),
			SourceXML:  EscapeXML(inh.SourcePath),
			SourceHref: XifyDirPath(inh.SourcePath) + ".html",
			Depth:      inh.Depth,
			DescHTML:   ih,
			DescXML:    EscapeXML(inh.Description),
		})
	}
	if res.Clusters != nil {
		fv.Identifiers = res.Clusters.SharedIdentifiers(f)
	}
	return fv, nil
}

func metaViews(meta *indexdoc.MetadataBlock, esc func(string) string) []MetaKV {
	var out []MetaKV
	for _, key := range meta.Keys() {
		kv := MetaKV{Key: esc(key)}
		for _, v := range meta.Get(key) {
			kv.Values = append(kv.Values, esc(v))
		}
		out = append(out, kv)
	}
	return out
}

// breadcrumb renders ancestor page links for a directory path, the way the
// archive's pages have always shown them.
func breadcrumb(path string) string {
	var b strings.Builder
	segs := strings.Split(path, "/")
	cur := ""
	for i, seg := range segs {
		if cur == "" {
			cur = seg
		} else {
			cur = cur + "/" + seg
			b.WriteString("/")
		}
		if i == len(segs)-1 {
			b.WriteString(EscapeHTML(seg))
		} else {
			b.WriteString(`<a href="` + XifyDirPath(cur) + `.html">` + EscapeHTML(seg) + `</a>`)
		}
	}
	return b.String()
}

// nowString formats the generation stamp used in page footers.
func nowString(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
