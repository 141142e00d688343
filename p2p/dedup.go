package p2p

import (
	"container/list"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

// dedupTTL bounds how long a seen-envelope fingerprint is remembered;
// gossip loops only need to be broken within one sync cycle's worth of
// re-delivery, not forever.
const dedupTTL = 10 * time.Minute

// seenCache is the gossip loop-prevention cache spec §4.7 asks for beyond
// the index-based NEW_BLOCK checks: a bounded, TTL-evicting set of
// recently broadcast envelope fingerprints, keyed with blake3 for speed
// since this runs on every relayed message.
type seenCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	now     func() time.Time
}

type seenEntry struct {
	key    string
	expiry time.Time
}

// newSeenCache builds an empty cache.
func newSeenCache() *seenCache {
	return &seenCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     dedupTTL,
		now:     time.Now,
	}
}

// fingerprint returns the blake3 digest of env's type and payload.
func fingerprint(env Envelope) string {
	sum := blake3.Sum256(append([]byte(env.Type), env.Payload...))
	return string(sum[:])
}

// Seen reports whether env was already observed within ttl, recording it
// as seen if not. Safe for concurrent use.
func (c *seenCache) Seen(env Envelope) bool {
	key := fingerprint(env)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked(now)

	if _, ok := c.entries[key]; ok {
		return true
	}
	elem := c.order.PushFront(&seenEntry{key: key, expiry: now.Add(c.ttl)})
	c.entries[key] = elem
	return false
}

func (c *seenCache) evictExpiredLocked(now time.Time) {
	for {
		elem := c.order.Back()
		if elem == nil {
			break
		}
		entry := elem.Value.(*seenEntry)
		if now.Before(entry.expiry) {
			break
		}
		c.order.Remove(elem)
		delete(c.entries, entry.key)
	}
}
