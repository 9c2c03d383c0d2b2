package notify

import (
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize/english"
)

// Cache holds notifications that are pending announcement. It has no
// timeout: an entry stays until it is toggled off by a repeat of the same
// message or cleared. Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Type][]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Type][]string)}
}

// Toggle adds (t, text) if absent and removes it if present. It returns
// true when the entry is now present.
func (c *Cache) Toggle(t Type, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.entries[t]
	if i := slices.Index(msgs, text); i >= 0 {
		msgs = slices.Delete(msgs, i, i+1)
		if len(msgs) == 0 {
			delete(c.entries, t)
		} else {
			c.entries[t] = msgs
		}
		return false
	}
	c.entries[t] = append(msgs, text)
	return true
}

// Contains reports whether (t, text) is pending.
func (c *Cache) Contains(t Type, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.entries[t], text)
}

// FormattedFor returns every pending message of type t, each prefixed
// with the type label.
func (c *Cache) FormattedFor(t Type) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	c.writeType(&b, t)
	return b.String()
}

// FormattedAll returns every pending message, grouped by type.
func (c *Cache) FormattedAll() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for _, t := range c.orderedTypes() {
		c.writeType(&b, t)
	}
	return b.String()
}

// Summary returns one line per type with the pluralized count, e.g.
// "2 Missed calls\n". Messages of unknown type are not summarized.
func (c *Cache) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	for _, t := range Types {
		if n := len(c.entries[t]); n > 0 {
			b.WriteString(english.Plural(n, t.Label(), ""))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Count returns the number of pending messages.
func (c *Cache) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, msgs := range c.entries {
		n += len(msgs)
	}
	return n
}

// RemoveType drops every message of type t. It reports whether any were
// present.
func (c *Cache) RemoveType(t Type) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[t]
	delete(c.entries, t)
	return ok
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// orderedTypes must be called with the lock held.
func (c *Cache) orderedTypes() []Type {
	types := make([]Type, 0, len(c.entries))
	if _, ok := c.entries[TypeUnknown]; ok {
		types = append(types, TypeUnknown)
	}
	for _, t := range Types {
		if _, ok := c.entries[t]; ok {
			types = append(types, t)
		}
	}
	return types
}

// writeType must be called with the lock held.
func (c *Cache) writeType(b *strings.Builder, t Type) {
	label := t.Label()
	for _, msg := range c.entries[t] {
		if label != "" {
			b.WriteString(label)
			b.WriteByte(' ')
		}
		b.WriteString(msg)
		b.WriteByte(' ')
	}
}
