package model

import "sort"

// unionFind is a plain disjoint-set over identifier strings with path
// compression and union by size.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string), size: make(map[string]int)}
}

func (u *unionFind) find(x string) string {
	p, ok := u.parent[x]
	if !ok {
		u.parent[x] = x
		u.size[x] = 1
		return x
	}
	if p == x {
		return x
	}
	root := u.find(p)
	u.parent[x] = root
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// Clusters groups entries that share declared identifiers into logical-work
// clusters. It is queried on demand rather than baked into the tree.
type Clusters struct {
	uf      *unionFind
	members map[string][]*FileEntry // root identifier -> entries
}

// buildClusters unions every identifier declared on each entry and records
// the entry under the resulting root. An entry with several identifiers
// merges all their groups.
func buildClusters(entries []*FileEntry) *Clusters {
	c := &Clusters{uf: newUnionFind(), members: make(map[string][]*FileEntry)}
	for _, f := range entries {
		if len(f.Identifiers) == 0 {
			continue
		}
		first := f.Identifiers[0]
		c.uf.find(first)
		for _, id := range f.Identifiers[1:] {
			c.uf.union(first, id)
		}
	}
	for _, f := range entries {
		if len(f.Identifiers) == 0 {
			continue
		}
		root := c.uf.find(f.Identifiers[0])
		c.members[root] = append(c.members[root], f)
	}
	// Deterministic member order: document order, then path.
	for _, ms := range c.members {
		sort.SliceStable(ms, func(i, j int) bool {
			if ms[i].Order != ms[j].Order {
				return ms[i].Order < ms[j].Order
			}
			return ms[i].Path < ms[j].Path
		})
	}
	return c
}

// Members returns every entry sharing an identifier group with f, including
// f itself, in document order. An entry with no identifiers is its own
// cluster.
func (c *Clusters) Members(f *FileEntry) []*FileEntry {
	if c == nil || len(f.Identifiers) == 0 {
		return []*FileEntry{f}
	}
	return c.members[c.uf.find(f.Identifiers[0])]
}

// SharedIdentifiers returns the sorted distinct identifiers of f's cluster.
func (c *Clusters) SharedIdentifiers(f *FileEntry) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, m := range c.Members(f) {
		for _, id := range m.Identifiers {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}
