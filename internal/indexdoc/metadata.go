package indexdoc

// MetadataBlock is an ordered multi-valued key/value mapping parsed from the
// declaration lines under a section heading. Key order and per-key value
// order both follow the source document.
type MetadataBlock struct {
	keys   []string
	values map[string][]string
}

// NewMetadataBlock returns an empty metadata block.
func NewMetadataBlock() *MetadataBlock {
	return &MetadataBlock{values: make(map[string][]string)}
}

// Add appends a value under key, preserving insertion order.
func (m *MetadataBlock) Add(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = append(m.values[key], value)
}

// Get returns the ordered values for key, or nil.
func (m *MetadataBlock) Get(key string) []string {
	if m == nil {
		return nil
	}
	return m.values[key]
}

// First returns the first value for key, or "".
func (m *MetadataBlock) First(key string) string {
	vals := m.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Keys returns the keys in declaration order.
func (m *MetadataBlock) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of distinct keys.
func (m *MetadataBlock) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Merge appends every entry of other after the entries of m.
func (m *MetadataBlock) Merge(other *MetadataBlock) {
	if other == nil {
		return
	}
	for _, key := range other.keys {
		for _, val := range other.values[key] {
			m.Add(key, val)
		}
	}
}
