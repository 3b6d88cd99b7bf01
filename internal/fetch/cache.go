package fetch

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/claimsift/claimsift/internal/model"
)

// MemoryCache is a process-local article cache for runs without a backing
// store. Entries expire after a TTL and are swept in the background.
type MemoryCache struct {
	cache *gocache.Cache
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates a cache whose entries live for ttl. A
// non-positive ttl falls back to one hour.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) GetArticle(_ context.Context, rawURL string) (model.Article, bool) {
	cached, ok := c.cache.Get(rawURL)
	if !ok {
		return model.Article{}, false
	}
	return cached.(model.Article), true
}

func (c *MemoryCache) PutArticle(_ context.Context, art model.Article) {
	if art.URL == "" {
		return
	}
	c.cache.Set(art.URL, art, gocache.DefaultExpiration)
}
