package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/model"
)

// ArticleCache adapts a Store to the fetcher's cache interface. Store
// failures are logged and treated as misses so a flaky database never
// blocks a fetch.
type ArticleCache struct {
	store Store
	ttl   time.Duration
}

// NewArticleCache wraps st with the given entry TTL. A non-positive ttl
// defaults to 24 hours.
func NewArticleCache(st Store, ttl time.Duration) *ArticleCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ArticleCache{store: st, ttl: ttl}
}

func (c *ArticleCache) GetArticle(ctx context.Context, rawURL string) (model.Article, bool) {
	art, err := c.store.GetCachedArticle(ctx, rawURL)
	if err != nil {
		zap.L().Warn("store: article cache read failed", zap.String("url", rawURL), zap.Error(err))
		return model.Article{}, false
	}
	if art == nil {
		return model.Article{}, false
	}
	return *art, true
}

func (c *ArticleCache) PutArticle(ctx context.Context, art model.Article) {
	if err := c.store.SetCachedArticle(ctx, art, c.ttl); err != nil {
		zap.L().Warn("store: article cache write failed", zap.String("url", art.URL), zap.Error(err))
	}
}
