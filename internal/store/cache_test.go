package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimsift/claimsift/internal/model"
)

func TestArticleCache_MissThenHit(t *testing.T) {
	st := newTestSQLiteStore(t)
	cache := NewArticleCache(st, time.Hour)
	ctx := context.Background()

	_, ok := cache.GetArticle(ctx, "https://news.example/story")
	assert.False(t, ok)

	cache.PutArticle(ctx, model.Article{
		URL:         "https://news.example/story",
		Title:       "Story",
		BodyText:    "Body.",
		FetchStatus: model.FetchOK,
	})

	got, ok := cache.GetArticle(ctx, "https://news.example/story")
	require.True(t, ok)
	assert.Equal(t, "Story", got.Title)
}

func TestArticleCache_StoreFailureIsMiss(t *testing.T) {
	st := newTestSQLiteStore(t)
	cache := NewArticleCache(st, time.Hour)
	ctx := context.Background()

	cache.PutArticle(ctx, model.Article{URL: "https://news.example/story", FetchStatus: model.FetchOK})
	require.NoError(t, st.Close())

	// Reads against a closed store degrade to misses; writes are dropped.
	_, ok := cache.GetArticle(ctx, "https://news.example/story")
	assert.False(t, ok)
	cache.PutArticle(ctx, model.Article{URL: "https://news.example/other"})
}

func TestArticleCache_DefaultTTL(t *testing.T) {
	st := newTestSQLiteStore(t)
	cache := NewArticleCache(st, 0)
	assert.Equal(t, 24*time.Hour, cache.ttl)
}
