package flow

import "sort"

// Context is the evolving attribute mapping threaded through a run.
//
// Keys keep their insertion order, which makes merge results and report
// output deterministic. A step's returned mapping is merged with
// last-writer-wins semantics: an existing key is overwritten in place, a new
// key is appended. Parallel groups operate on snapshots, so substeps never
// observe each other's writes.
type Context struct {
	keys   []string
	values map[string]any
}

// NewContext creates a Context seeded from the given mapping. The initial
// keys are inserted in sorted order so that two runs started from the same
// map observe the same key order.
func NewContext(initial map[string]any) *Context {
	c := &Context{values: make(map[string]any, len(initial))}
	keys := make([]string, 0, len(initial))
	for k := range initial {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.keys = append(c.keys, k)
		c.values[k] = initial[k]
	}
	return c
}

// Get returns the value for key and whether it is present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Value returns the value for key, or nil when absent.
func (c *Context) Value(key string) any {
	return c.values[key]
}

// Has reports whether key is present.
func (c *Context) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// Set stores a single key. New keys are appended to the insertion order.
func (c *Context) Set(key string, value any) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// Delete removes a key, preserving the relative order of the rest.
func (c *Context) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Merge applies a step's result mapping with last-writer-wins semantics and
// returns the keys that were newly added, in the order they were inserted.
// The delta's new keys are inserted in sorted order for determinism.
func (c *Context) Merge(delta map[string]any) []string {
	if len(delta) == 0 {
		return nil
	}
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var added []string
	for _, k := range keys {
		if _, ok := c.values[k]; !ok {
			c.keys = append(c.keys, k)
			added = append(added, k)
		}
		c.values[k] = delta[k]
	}
	return added
}

// Snapshot returns an independent copy. Values are copied shallowly; the
// engine treats them as opaque.
func (c *Context) Snapshot() *Context {
	cp := &Context{
		keys:   make([]string, len(c.keys)),
		values: make(map[string]any, len(c.values)),
	}
	copy(cp.keys, c.keys)
	for k, v := range c.values {
		cp.values[k] = v
	}
	return cp
}

// Keys returns the attribute names in insertion order.
func (c *Context) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of attributes.
func (c *Context) Len() int {
	return len(c.keys)
}

// Map returns a plain map copy of the attributes. Key order is not carried;
// use Keys for ordered iteration.
func (c *Context) Map() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
