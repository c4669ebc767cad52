package marshall

import "sort"

// Document is an immutable string mapping returned by the deserialization
// of plain mapping nodes. Its iteration order is fixed to the sorted order
// of the keys, which is the order of the canonical wire form. Returning an
// immutable container prevents callers from corrupting decoded structure
// shared between consumers; serialization still accepts ordinary mutable
// maps as input.
type Document struct {
	keys   []string
	values map[string]interface{}
}

// NewDocument creates a document from the entries of the map. The map is
// copied so later mutations of the argument do not affect the document.
func NewDocument(values map[string]interface{}) Document {
	keys := make([]string, 0, len(values))
	copied := make(map[string]interface{}, len(values))

	for key, value := range values {
		keys = append(keys, key)
		copied[key] = value
	}

	sort.Strings(keys)

	return Document{
		keys:   keys,
		values: copied,
	}
}

// Get returns the value associated with the key.
func (d Document) Get(key string) (interface{}, bool) {
	value, found := d.values[key]
	return value, found
}

// Len returns the number of entries.
func (d Document) Len() int {
	return len(d.keys)
}

// Keys returns the keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)

	return keys
}

// Range calls fn for every entry in sorted key order until fn returns
// false.
func (d Document) Range(fn func(key string, value interface{}) bool) {
	for _, key := range d.keys {
		if !fn(key, d.values[key]) {
			return
		}
	}
}

// Map returns a mutable copy of the entries.
func (d Document) Map() map[string]interface{} {
	values := make(map[string]interface{}, len(d.values))
	for key, value := range d.values {
		values[key] = value
	}

	return values
}
