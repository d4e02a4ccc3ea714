package render

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// Template names and the lib-dir files that override the built-in bodies.
// The curator-maintained lib directory may carry customized templates; any
// missing file falls back to the built-in.
var templateFiles = map[string]string{
	"dirpage":  "dir-page.tmpl",
	"datelist": "date-list.tmpl",
	"dirlist":  "dir-list.tmpl",
	"xml":      "master-index-xml.tmpl",
	"feed":     "feed.tmpl",
}

// TemplateSet holds the parsed output templates.
type TemplateSet struct {
	root *template.Template
}

// LoadTemplates parses the built-in templates, replacing any that have an
// override file in libDir. Escaping happens during view construction, so
// these are text templates emitting prepared fields verbatim.
func LoadTemplates(libDir string) (*TemplateSet, error) {
	root := template.New("archidx").Option("missingkey=error")

	bodies := map[string]string{
		"dirpage":  defaultDirPage,
		"datelist": defaultDateList,
		"dirlist":  defaultDirList,
		"xml":      defaultXML,
		"feed":     defaultFeed,
	}
	for name, file := range templateFiles {
		if libDir == "" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(libDir, file))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read template %s: %w", file, err)
		}
		bodies[name] = string(data)
	}

	for name, body := range bodies {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
	}
	return &TemplateSet{root: root}, nil
}

const defaultDirPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Site.Title}}: {{.Dir.PathHTML}}</title>
</head>
<body>
<h1>Index: {{.Dir.Breadcrumb}}</h1>
{{if .Dir.HasHeader}}<div class="header">
{{.Dir.HeaderHTML}}</div>
{{end}}{{if .Dir.HasParent}}<p><a href="{{.Dir.ParentHref}}">(parent directory)</a></p>
{{end}}<p>{{.Dir.FileCount}} items, {{.Dir.SubdirCount}} subdirectories</p>
{{if .Dir.Subdirs}}<h2>Subdirectories</h2>
<ul class="subdirlist">
{{range .Dir.Subdirs}}<li><a href="{{.Href}}">{{.Name}}</a></li>
{{end}}</ul>
{{end}}{{if .Dir.Files}}<h2>Files</h2>
<dl class="filelist">
{{range .Dir.Files}}<dt id="{{.Anchor}}"><a href="{{.Href}}">{{.Display}}</a>{{if .HasStat}} [{{.Size}} bytes, {{.Date}}]{{end}}{{if .IsDirLink}} (symlink to <a href="{{.LinkDirHref}}">{{.LinkDirPath}}</a>){{else if .IsLink}} (symlink to {{.LinkTarget}}){{end}}</dt>
<dd>{{if .HasDesc}}{{.DescHTML}}{{end}}{{range .Inherited}}<div class="inherited">From <a href="{{.SourceHref}}">{{.SourceHTML}}</a>: {{.DescHTML}}</div>
{{end}}{{if .MD5}}<p class="checksums">md5: {{.MD5}}<br>sha512: {{.SHA512}}</p>
{{end}}{{if .Identifiers}}<p class="ids">{{range .Identifiers}}<span class="id">{{.}}</span> {{end}}</p>
{{end}}</dd>
{{end}}</dl>
{{end}}{{if .Dir.Mentions}}<h2>Also described here</h2>
<ul class="mentions">
{{range .Dir.Mentions}}<li><a href="{{.Href}}">{{.Name}}</a> (from {{.SourceHTML}})</li>
{{end}}</ul>
{{end}}<p class="footer">Generated {{.Site.Generated}}</p>
</body>
</html>
`

const defaultDateList = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Site.Title}}: new files{{if .WindowName}} in the last {{.WindowName}}{{end}}</title>
</head>
<body>
<h1>{{if .WindowName}}Files added in the last {{.WindowName}}{{else}}All files by date{{end}}</h1>
<dl class="datelist">
{{range .Files}}<dt><a href="{{.Href}}">{{.Display}}</a> [{{.Date}}]</dt>
<dd>{{.DescHTML}}</dd>
{{end}}</dl>
<p class="footer">Generated {{.Site.Generated}}</p>
</body>
</html>
`

const defaultDirList = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Site.Title}}: all directories</title>
</head>
<body>
<h1>All directories</h1>
<ul class="dirlist">
{{range .Dirs}}<li><a href="{{.Href}}">{{.Display}}</a> ({{.FileCount}} items)</li>
{{end}}</ul>
<p class="footer">Generated {{.Site.Generated}}</p>
</body>
</html>
`

const defaultXML = `<?xml version="1.0" encoding="UTF-8"?>
<master-index generated="{{.Site.Generated}}">
{{range .Dirs}}<directory>
<name>{{.PathXML}}</name>
<count>{{.FileCount}}</count>
<subdircount>{{.SubdirCount}}</subdircount>
{{if .HasHeader}}<description>{{.HeaderXML}}</description>
{{end}}{{range .MetadataX}}<metadata key="{{.Key}}">{{range .Values}}<value>{{.}}</value>{{end}}</metadata>
{{end}}{{range .Files}}<file>
<name>{{.NameXML}}</name>
<path>{{.PathXML}}</path>
{{if .HasStat}}<size>{{.Size}}</size>
<date>{{.Timestamp}}</date>
{{end}}{{if .MD5}}<md5>{{.MD5}}</md5>
<sha512>{{.SHA512}}</sha512>
{{end}}{{if .HasDesc}}<description>{{.DescXML}}</description>
{{end}}{{range .Inherited}}<inherited from="{{.SourceXML}}">{{.DescXML}}</inherited>
{{end}}{{range .MetadataX}}<metadata key="{{.Key}}">{{range .Values}}<value>{{.}}</value>{{end}}</metadata>
{{end}}</file>
{{end}}</directory>
{{end}}</master-index>
`

const defaultFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>{{.Site.Title}}: recent additions</title>
<link>{{.Site.BaseURL}}/</link>
<description>Files recently added to the archive.</description>
<lastBuildDate>{{.BuildDate}}</lastBuildDate>
{{range .Items}}<item>
<title>{{.NameXML}}</title>
<link>{{.Href}}</link>
<guid isPermaLink="false">{{.PathXML}}</guid>
<pubDate>{{.PubDate}}</pubDate>
<description>{{.DescXML}}</description>
</item>
{{end}}</channel>
</rss>
`
