package store_test

import (
	"github.com/claimsift/claimsift/internal/fetch"
	"github.com/claimsift/claimsift/internal/store"
)

// The fetcher consumes the article cache through its own Cache interface.
// Checked from an external test package: asserting it inside package store
// would pull internal/fetch (and through it internal/config) back into the
// store's import graph, which config itself sits on for PoolConfig.
var _ fetch.Cache = (*store.ArticleCache)(nil)
