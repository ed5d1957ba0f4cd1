package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"sync"

	"github.com/rcrowley/go-metrics"
	"golang.org/x/crypto/pbkdf2"
)

// DeriveKey stretches a password into an AES-256 key bound to salt.
// PBKDF2-HMAC-SHA256, DefaultIterations rounds, 32 bytes of output.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, DefaultIterations, KeySize, sha256.New)
}

// KeyCache memoizes derived keys by salt.
//
// Every Reset bumps a generation counter. A key derived before a Reset
// carries the old generation and is refused by Store, so keys from a
// replaced password can never reappear in the cache.
type KeyCache struct {
	mu         sync.RWMutex
	keys       map[string][]byte
	generation uint64

	hits   metrics.Counter
	misses metrics.Counter
}

// NewKeyCache creates an empty cache. A nil registry disables metrics.
func NewKeyCache(registry metrics.Registry) *KeyCache {
	c := &KeyCache{
		keys:   make(map[string][]byte),
		hits:   metrics.NilCounter{},
		misses: metrics.NilCounter{},
	}
	if registry != nil {
		c.hits = metrics.GetOrRegisterCounter(metricPrefix+"keycache.hit", registry)
		c.misses = metrics.GetOrRegisterCounter(metricPrefix+"keycache.miss", registry)
	}
	return c
}

// Get returns a copy of the cached key for salt.
func (c *KeyCache) Get(salt []byte) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key, ok := c.keys[cacheKey(salt)]
	if !ok {
		c.misses.Inc(1)
		return nil, false
	}

	c.hits.Inc(1)
	return append([]byte(nil), key...), true
}

// Generation identifies the current password epoch.
func (c *KeyCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// Store caches key for salt if generation is still current.
func (c *KeyCache) Store(salt, key []byte, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return false
	}

	c.keys[cacheKey(salt)] = append([]byte(nil), key...)
	return true
}

// Reset drops every cached key and starts a new generation.
func (c *KeyCache) Reset() {
	c.mu.Lock()
	old := c.keys
	c.keys = make(map[string][]byte)
	c.generation++
	c.mu.Unlock()

	for _, key := range old {
		wipe(key)
	}
}

// Len returns the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func cacheKey(salt []byte) string {
	return base64.StdEncoding.EncodeToString(salt)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
