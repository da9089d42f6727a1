// Package rollcache keeps the most recent dice rolls of every session in
// memory so a client joining a dice table late can be caught up without a
// store round trip.
package rollcache

import (
	"sync"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/engine"
)

const DefaultCapacity = 20

// Cache is a set of per-session ring buffers. Entries live for the lifetime
// of the process; nothing expires them.
type Cache struct {
	mu       sync.Mutex
	capacity int
	rings    map[string]*ring
}

type ring struct {
	buf   []engine.RollRecord
	start int
	size  int
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{capacity: capacity, rings: make(map[string]*ring)}
}

func (c *Cache) Capacity() int { return c.capacity }

func (c *Cache) ringLocked(sessionID string) *ring {
	r := c.rings[sessionID]
	if r == nil {
		r = &ring{buf: make([]engine.RollRecord, c.capacity)}
		c.rings[sessionID] = r
	}
	return r
}

func (r *ring) push(rec engine.RollRecord) {
	n := len(r.buf)
	if r.size < n {
		r.buf[(r.start+r.size)%n] = rec
		r.size++
		return
	}
	// Full: overwrite the oldest slot and advance.
	r.buf[r.start] = rec
	r.start = (r.start + 1) % n
}

func (r *ring) items() []engine.RollRecord {
	out := make([]engine.RollRecord, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// Append pushes rec, dropping the oldest roll once the session is at capacity.
func (c *Cache) Append(sessionID string, rec engine.RollRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ringLocked(sessionID).push(rec)
}

// Snapshot returns the cached rolls oldest first. ok is false when the
// session has never been seeded, appended to, or cleared in this process.
func (c *Cache) Snapshot(sessionID string) (recs []engine.RollRecord, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.rings[sessionID]
	if r == nil {
		return []engine.RollRecord{}, false
	}
	return r.items(), true
}

// Clear empties a session's ring but keeps it known.
func (c *Cache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rings[sessionID] = &ring{buf: make([]engine.RollRecord, c.capacity)}
}

// Seed fills an unknown session from recs (oldest first), keeping the last
// capacity entries. It reports false and does nothing if the session is
// already known, so a concurrent Append is never overwritten.
func (c *Cache) Seed(sessionID string, recs []engine.RollRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rings[sessionID]; ok {
		return false
	}
	r := c.ringLocked(sessionID)
	for _, rec := range recs {
		r.push(rec)
	}
	return true
}

// Forget drops a session entirely; used when the session itself is deleted.
func (c *Cache) Forget(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rings, sessionID)
}
