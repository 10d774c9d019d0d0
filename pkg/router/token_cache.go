package router

import (
	"sync"
	"time"

	"github.com/speedrun-hq/stellar-bridge/pkg/models"
)

// TokenCache holds router token lists per chain to avoid repeated API calls
type TokenCache struct {
	mu       sync.RWMutex
	cache    map[string]*cachedTokens
	cacheTTL time.Duration
	now      func() time.Time
}

type cachedTokens struct {
	tokens    []models.Asset
	timestamp time.Time
}

// NewTokenCache creates a new token cache
func NewTokenCache(cacheTTL time.Duration) *TokenCache {
	return &TokenCache{
		cache:    make(map[string]*cachedTokens),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Get returns the cached tokens of chain if they are still fresh
func (c *TokenCache) Get(chain string) ([]models.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, exists := c.cache[chain]
	if !exists || c.now().Sub(cached.timestamp) > c.cacheTTL {
		return nil, false
	}
	return cached.tokens, true
}

// Set stores the tokens of chain with the current timestamp
func (c *TokenCache) Set(chain string, tokens []models.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache[chain] = &cachedTokens{
		tokens:    tokens,
		timestamp: c.now(),
	}
}

// Clear removes all cached entries
func (c *TokenCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*cachedTokens)
}

// Len returns the number of cached chains, fresh or not
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
