// Package indexdoc parses the composed description document into ordered
// section records.
//
// The document is a concatenation of per-directory fragments. A directory
// section opens with an h1 heading whose text is the canonical directory
// path followed by a colon:
//
//	# if-archive/games:
//
// File entries inside a directory section open with an h2 heading naming the
// file, optionally with a relative sub-path for entries several levels below
// the heading directory:
//
//	## zork.z5
//	## solutions/zork.sol
//
// Each heading may be followed by a metadata block (key: value lines,
// indented continuation lines for multi-valued keys) and free description
// text, which passes through unmodified. Sections are separated by rule
// delimiter lines of dashes.
package indexdoc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrMalformedDocument marks a structural parse failure. It is fatal: a
// corrupt source document must never produce partially updated pages.
var ErrMalformedDocument = errors.New("malformed index document")

// Kind distinguishes directory sections from file sections.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Section is one parsed record of the document, in source order.
type Section struct {
	// Path is the canonical archive path of the described entry
	// ("if-archive/games" or "if-archive/games/zork.z5").
	Path string
	// Kind says whether the section heading was a directory or file heading.
	Kind Kind
	// Dir is the enclosing directory section's path. Equal to Path for
	// directory sections.
	Dir string
	// SubDepth is the number of directory levels between Dir and the named
	// entry. Zero for immediate children and for directory sections; a file
	// heading "solutions/zork.sol" has SubDepth 1.
	SubDepth int
	// Metadata holds the declared key/value block, never nil.
	Metadata *MetadataBlock
	// Description is the raw free-text description, trailing whitespace
	// trimmed. Inline markup passes through untouched.
	Description string
	// Order is the section's index in the document, for deterministic
	// tie-breaking downstream.
	Order int
}

var (
	dirHeadingPattern  = regexp.MustCompile(`^#\s+(\S.*):\s*$`)
	fileHeadingPattern = regexp.MustCompile(`^##\s+(\S.*?)\s*$`)
	ruleLinePattern    = regexp.MustCompile(`^[ ]*[-=+*]{3,}[ \-=+*]*$`)
	metaStartPattern   = regexp.MustCompile(`^ {0,3}([A-Za-z0-9_-]+):[ \t]?(.*)$`)
	metaContPattern    = regexp.MustCompile(`^(?: {4}|\t)[ \t]*(\S.*?)\s*$`)
)

// Parser parses the composed description document.
type Parser struct {
	// RootName is the required first path element of every directory
	// heading ("if-archive").
	RootName string
}

// Parse reads the whole document and returns its sections in source order.
// Any unparsable heading aborts with an error wrapping ErrMalformedDocument.
func (p *Parser) Parse(r io.Reader) ([]Section, error) {
	root := p.RootName
	if root == "" {
		root = "if-archive"
	}

	var (
		sections []Section
		cur      *sectionBuilder
		curDir   string
		lineno   int
	)

	flush := func() {
		if cur == nil {
			return
		}
		sections = append(sections, cur.finish(len(sections)))
		cur = nil
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lineno++
		line := strings.TrimRight(sc.Text(), " \t\r")

		if strings.HasPrefix(line, "##") && !strings.HasPrefix(line, "###") {
			m := fileHeadingPattern.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("%w: line %d: unparsable file heading %q", ErrMalformedDocument, lineno, line)
			}
			name := m[1]
			if curDir == "" {
				return nil, fmt.Errorf("%w: line %d: file heading %q outside any directory section", ErrMalformedDocument, lineno, name)
			}
			if err := checkEntryName(name); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedDocument, lineno, err)
			}
			flush()
			cur = &sectionBuilder{
				kind:     KindFile,
				path:     curDir + "/" + name,
				dir:      curDir,
				subDepth: strings.Count(name, "/"),
			}
			continue
		}

		if strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "##") {
			m := dirHeadingPattern.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("%w: line %d: unparsable directory heading %q", ErrMalformedDocument, lineno, line)
			}
			path := m[1]
			if path != root && !strings.HasPrefix(path, root+"/") {
				return nil, fmt.Errorf("%w: line %d: directory %q outside root %q", ErrMalformedDocument, lineno, path, root)
			}
			if err := checkDirPath(path); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedDocument, lineno, err)
			}
			flush()
			curDir = path
			cur = &sectionBuilder{kind: KindDirectory, path: path, dir: path}
			continue
		}

		if ruleLinePattern.MatchString(line) {
			// Rule delimiters end the current section's body but carry no
			// content of their own.
			continue
		}

		if cur == nil {
			// Preamble text before the first heading is ignored.
			continue
		}
		cur.addLine(line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read index document: %w", err)
	}
	flush()

	return sections, nil
}

// checkDirPath rejects path syntax that cannot name a canonical directory.
func checkDirPath(path string) error {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid path segment in %q", path)
		}
	}
	return nil
}

// checkEntryName rejects file heading names that escape their directory.
func checkEntryName(name string) error {
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("invalid file name %q", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid file name %q", name)
		}
	}
	return nil
}

// sectionBuilder accumulates the metadata block and description lines of the
// section currently being read.
type sectionBuilder struct {
	kind     Kind
	path     string
	dir      string
	subDepth int

	meta     *MetadataBlock
	lastKey  string
	inMeta   bool
	metaDone bool
	desc     []string
}

func (b *sectionBuilder) addLine(line string) {
	if !b.metaDone {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if b.inMeta {
				// Blank line closes the metadata block.
				b.metaDone = true
				return
			}
			// Leading blank lines before any content are dropped either way.
			if len(b.desc) == 0 {
				return
			}
		} else if m := metaStartPattern.FindStringSubmatch(line); m != nil {
			if b.meta == nil {
				b.meta = NewMetadataBlock()
			}
			b.lastKey = m[1]
			b.meta.Add(b.lastKey, strings.TrimSpace(m[2]))
			b.inMeta = true
			return
		} else if b.inMeta {
			if m := metaContPattern.FindStringSubmatch(line); m != nil && b.lastKey != "" {
				b.meta.Add(b.lastKey, m[1])
				return
			}
			b.metaDone = true
		} else {
			b.metaDone = true
		}
	}
	b.desc = append(b.desc, line)
}

func (b *sectionBuilder) finish(order int) Section {
	meta := b.meta
	if meta == nil {
		meta = NewMetadataBlock()
	}
	// Drop leading and trailing blank description lines; inner blanks and
	// all inline markup are preserved verbatim.
	lines := b.desc
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return Section{
		Path:        b.path,
		Kind:        b.kind,
		Dir:         b.dir,
		SubDepth:    b.subDepth,
		Metadata:    meta,
		Description: strings.Join(lines, "\n"),
		Order:       order,
	}
}
