package render

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// descMarkdown renders description text. Authors are trusted to supply safe
// markup, so raw inline HTML passes through unmodified.
var descMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// DescriptionHTML converts a description to HTML for the browsing pages.
// An empty description stays empty.
func DescriptionHTML(desc string) (string, error) {
	if strings.TrimSpace(desc) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := descMarkdown.Convert([]byte(desc), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
