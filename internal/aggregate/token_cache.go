package aggregate

import (
	"strings"
	"sync"

	"poolcore/internal/model"
)

// PoolTokens is the token pair of a pool.
type PoolTokens struct {
	TokenA model.TokenMeta
	TokenB model.TokenMeta
}

// PoolTokenCache maps pool addresses to their tokens for decimal formatting.
type PoolTokenCache struct {
	mu   sync.RWMutex
	data map[string]PoolTokens
}

func NewPoolTokenCache() *PoolTokenCache {
	return &PoolTokenCache{data: make(map[string]PoolTokens)}
}

func (c *PoolTokenCache) Get(pool string) (PoolTokens, bool) {
	c.mu.RLock()
	tokens, ok := c.data[poolKey(pool)]
	c.mu.RUnlock()
	return tokens, ok
}

func (c *PoolTokenCache) Set(pool string, tokens PoolTokens) {
	c.mu.Lock()
	c.data[poolKey(pool)] = tokens
	c.mu.Unlock()
}

// Pools lists the known pool addresses in lowercase.
func (c *PoolTokenCache) Pools() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pools := make([]string, 0, len(c.data))
	for pool := range c.data {
		pools = append(pools, pool)
	}
	return pools
}

func poolKey(address string) string {
	return strings.ToLower(address)
}
