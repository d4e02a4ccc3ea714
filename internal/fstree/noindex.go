package fstree

import (
	"bufio"
	"os"
	"strings"
)

// ExemptList holds path prefixes for which missing index entries are
// expected: directories full of boring files, or directories whose contents
// change too often to document. Files under these prefixes are neither
// warned about nor excluded.
type ExemptList struct {
	prefixes []string
}

// LoadExemptList reads a prefix-per-line list file. A missing file yields an
// empty list, which exempts nothing.
func LoadExemptList(path string) (*ExemptList, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ExemptList{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var list ExemptList
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list.prefixes = append(list.prefixes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &list, nil
}

// Exempt reports whether path, or any prefix of it, appears in the list.
func (l *ExemptList) Exempt(path string) bool {
	if l == nil {
		return false
	}
	for _, p := range l.prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
