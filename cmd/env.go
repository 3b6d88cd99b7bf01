package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/blocklist"
	"github.com/claimsift/claimsift/internal/discover"
	"github.com/claimsift/claimsift/internal/fetch"
	"github.com/claimsift/claimsift/internal/pipeline"
	"github.com/claimsift/claimsift/internal/store"
	"github.com/claimsift/claimsift/internal/verify"
	"github.com/claimsift/claimsift/pkg/firecrawl"
	"github.com/claimsift/claimsift/pkg/jina"
)

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "claimsift.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the configured store and applies pending migrations.
// Callers own the returned store and must Close it.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// withStore wraps a command body that needs the store, opening the
// configured backend before the body runs and closing it afterwards.
func withStore(body func(cmd *cobra.Command, args []string, st store.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		return body(cmd, args, st)
	}
}

// pipelineEnv holds the initialized store and pipeline shared by the
// check, serve, and retry commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, discovery, fetching, and verification
// layers and wires them into a Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("check"); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	d, err := initDiscoverer(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	f := initFetcher(st)

	oracle, err := verify.NewOracleFromConfig(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	v := verify.New(oracle, verify.Options{
		MaxExcerptChars: cfg.Verify.MaxExcerptChars,
		Timeout:         time.Duration(cfg.Verify.TimeoutSecs) * time.Second,
	})

	p := pipeline.New(d, f, v, pipeline.Options{
		FetchConcurrency:  cfg.Pipeline.FetchConcurrency,
		VerifyConcurrency: cfg.Pipeline.VerifyConcurrency,
		Store:             st,
	})

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}

// initDiscoverer builds the provider-backed discoverer with the merged
// exclusion set: synced blocklist from the store, config domains, and the
// optional exclusions file.
func initDiscoverer(ctx context.Context, st store.Store) (*discover.Discoverer, error) {
	provider, err := discover.NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	extra := [][]string{cfg.Discovery.ExcludeDomains}
	if cfg.Discovery.ExclusionsFile != "" {
		fileDomains, err := discover.LoadExclusionsFile(cfg.Discovery.ExclusionsFile)
		if err != nil {
			return nil, err
		}
		extra = append(extra, fileDomains)
	}

	exclude, err := blocklist.Exclusions(ctx, st, extra...)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("discoverer ready",
		zap.String("provider", cfg.Discovery.Provider),
		zap.Int("excluded_domains", exclude.Len()),
	)

	return discover.New(provider, exclude, discover.Options{
		OverRequestFactor: cfg.Discovery.OverRequestFactor,
		Timeout:           time.Duration(cfg.Discovery.TimeoutSecs) * time.Second,
		Normalize: discover.NormalizeOptions{
			FoldWWW:          cfg.Discovery.FoldWWW,
			TrackingPrefixes: cfg.Discovery.TrackingParamPrefixes,
		},
	}), nil
}

// initFetcher wires the article fetcher with a store-backed cache and the
// optional Jina reader fallback.
func initFetcher(st store.Store) *fetch.ArticleFetcher {
	cacheTTL := time.Duration(cfg.Fetch.CacheTTLHours) * time.Hour
	var cache fetch.Cache
	if st != nil {
		cache = store.NewArticleCache(st, cacheTTL)
	} else {
		cache = fetch.NewMemoryCache(cacheTTL)
	}

	var reader fetch.Reader
	if cfg.Fetch.ReaderFallback {
		switch cfg.Fetch.Reader {
		case "firecrawl":
			fcOpts := []firecrawl.Option{}
			if cfg.Firecrawl.BaseURL != "" {
				fcOpts = append(fcOpts, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
			}
			reader = fetch.NewFirecrawlReader(firecrawl.NewClient(cfg.Firecrawl.Key, fcOpts...))
		default:
			jinaOpts := []jina.Option{}
			if cfg.Jina.BaseURL != "" {
				jinaOpts = append(jinaOpts, jina.WithBaseURL(cfg.Jina.BaseURL))
			}
			reader = fetch.NewJinaReader(jina.NewClient(cfg.Jina.Key, jinaOpts...))
		}
	}

	return fetch.NewFromConfig(cfg, cache, reader)
}
