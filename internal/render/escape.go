package render

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// autolinkPattern matches either an angle-bracketed URL or a bare bracket
// needing escaping.
var autolinkPattern = regexp.MustCompile(`(<(https?:[^>]+)>)|([<>])`)

// EscapeHTML applies the archive's legacy HTML escaping: < and > are
// escaped, strings of the form <http://...> are linkified, and & is left
// alone so literal entity sequences in old index text keep rendering.
func EscapeHTML(val string) string {
	return autolinkPattern.ReplaceAllStringFunc(val, func(m string) string {
		if strings.HasPrefix(m, "<http") {
			url := m[1 : len(m)-1]
			return fmt.Sprintf("<a href=%q>%s</a>", url, url)
		}
		switch m {
		case "<":
			return "&lt;"
		case ">":
			return "&gt;"
		}
		return m
	})
}

// EscapeXML applies the basic XML entity escapes.
func EscapeXML(val string) string {
	val = strings.ReplaceAll(val, "&", "&amp;")
	val = strings.ReplaceAll(val, "<", "&lt;")
	val = strings.ReplaceAll(val, ">", "&gt;")
	return val
}

// urlSafe reports whether a byte may appear raw in a URL path segment
// (RFC 3986 unreserved characters).
func urlSafe(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-' || b == '.' || b == '_' || b == '~':
		return true
	}
	return false
}

// EncodeURLName percent-encodes a single name for use in a hyperlink
// target. Every reserved character, whitespace and non-ASCII byte is
// encoded, byte-wise over the UTF-8 encoding.
func EncodeURLName(val string) string {
	var b strings.Builder
	for i := 0; i < len(val); i++ {
		c := val[i]
		if urlSafe(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// EncodeURLPath percent-encodes a slash-separated path, keeping the
// separators.
func EncodeURLPath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = EncodeURLName(s)
	}
	return strings.Join(segs, "/")
}

// AnchorID derives a stable, collision-resistant in-page anchor for a name.
// Raw names may contain characters invalid in anchor ids, so the id is a
// hash, never the text itself. Names are NFC-normalized first so visually
// identical names produce one anchor regardless of their codepoint
// composition.
func AnchorID(name string) string {
	sum := sha1.Sum([]byte(norm.NFC.String(name)))
	return "e-" + hex.EncodeToString(sum[:])[:12]
}

// XifyDirPath converts a directory path to the flat name used for its
// index page file: "if-archive/games" becomes "if-archiveXgames".
func XifyDirPath(path string) string {
	return strings.ReplaceAll(path, "/", "X")
}

// breakEvery is the segment length beyond which soft break points are
// inserted.
const breakEvery = 16

// BreakHints inserts <wbr> break opportunities into an HTML-escaped path or
// name for display. It is display-only: link targets and anchor ids are
// derived from the raw name, never from this output.
func BreakHints(escaped string) string {
	var b strings.Builder
	run := 0
	inTag := false
	inEntity := false
	for _, r := range escaped {
		b.WriteRune(r)
		switch {
		case r == '<':
			inTag = true
			continue
		case r == '>':
			inTag = false
			continue
		case inTag:
			continue
		case r == '&':
			inEntity = true
			continue
		case inEntity:
			if r == ';' {
				inEntity = false
			}
			continue
		}
		run++
		if r == '/' || r == '_' || r == '-' {
			b.WriteString("<wbr>")
			run = 0
		} else if run >= breakEvery {
			b.WriteString("<wbr>")
			run = 0
		}
	}
	return b.String()
}
