package video

import (
	"sync"
	"time"
)

// DefaultChunkCacheTTL and DefaultPruneInterval mirror the spec's stated
// defaults (spec §4.4).
const (
	DefaultChunkCacheTTL  = time.Second
	DefaultPruneInterval  = 60
)

type cacheEntry struct {
	createdAt   time.Time
	totalChunks uint16
	chunks      map[uint16][]byte
}

// ChunkCache holds recently-sent chunk payloads so a video_frame_chunk_nack
// can be serviced without re-encoding (spec §4.4). Every method takes the
// cache's mutex, so Put/Prune from the encoder's frame path and Get from a
// NACK retransmit may run concurrently.
type ChunkCache struct {
	mu      sync.Mutex
	entries map[uint32]*cacheEntry
	ttl     time.Duration
	pruneEvery uint32
}

// NewChunkCache builds a cache with the given TTL and prune interval. A
// zero ttl or pruneEvery falls back to the spec defaults.
func NewChunkCache(ttl time.Duration, pruneEvery uint32) *ChunkCache {
	if ttl <= 0 {
		ttl = DefaultChunkCacheTTL
	}
	if pruneEvery == 0 {
		pruneEvery = DefaultPruneInterval
	}
	return &ChunkCache{
		entries:    make(map[uint32]*cacheEntry),
		ttl:        ttl,
		pruneEvery: pruneEvery,
	}
}

// Put deposits one chunk, keyed by (frame_id, chunk_index), with the
// current timestamp (spec §4.4). Called from Pipeline.FragmentAndCache when
// the session's lossless flag is set.
func (c *ChunkCache) Put(frameID uint32, chunkIndex, totalChunks uint16, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[frameID]
	if !ok {
		e = &cacheEntry{
			createdAt:   time.Now(),
			totalChunks: totalChunks,
			chunks:      make(map[uint16][]byte),
		}
		c.entries[frameID] = e
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.chunks[chunkIndex] = cp

	if frameID%c.pruneEvery == 0 {
		c.pruneLocked()
	}
}

// Get returns the cached chunk payload for (frame_id, chunk_index) if
// present and not past TTL.
func (c *ChunkCache) Get(frameID uint32, chunkIndex uint16) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[frameID]
	if !ok {
		return nil, false
	}
	if time.Since(e.createdAt) > c.ttl {
		return nil, false
	}
	b, ok := e.chunks[chunkIndex]
	return b, ok
}

// Prune evicts entries older than TTL unconditionally (exposed for tests
// and for callers that want to force a sweep outside the mod-interval
// trigger).
func (c *ChunkCache) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked()
}

func (c *ChunkCache) pruneLocked() {
	now := time.Now()
	for id, e := range c.entries {
		if now.Sub(e.createdAt) > c.ttl {
			delete(c.entries, id)
		}
	}
}

// Len reports the number of live frame entries (test helper).
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
