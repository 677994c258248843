package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/gymdex/gymdex-cli/internal/batch"
	"github.com/gymdex/gymdex-cli/internal/fetcher"
	"github.com/gymdex/gymdex-cli/internal/merge"
	"github.com/gymdex/gymdex-cli/internal/monitoring"
	"github.com/gymdex/gymdex-cli/internal/search"
	"github.com/gymdex/gymdex-cli/internal/session"
	"github.com/gymdex/gymdex-cli/internal/store"
)

// appEnv bundles the wired application components for one command run.
type appEnv struct {
	Store   store.Store
	Fetcher *fetcher.HTTPFetcher
	Chain   *search.Chain
	Monitor *monitoring.Monitor
	Runner  *session.Runner
}

func openStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
	})

	gaz := search.DefaultGazetteer()
	if cfg.Search.Gazetteer != "" {
		gaz, err = search.LoadGazetteer(cfg.Search.Gazetteer)
		if err != nil {
			st.Close() //nolint:errcheck
			return nil, eris.Wrap(err, "load gazetteer")
		}
	}

	chain := search.NewDefaultChain(
		search.NewPrimarySearch(f, cfg.Search.PrimaryEndpoint, gaz),
		search.NewSimplifiedRetry(f, cfg.Search.PrimaryEndpoint),
		search.NewAlternateGeneral(f, cfg.Search.GeneralEndpoint),
		search.NewBlogSearch(f, cfg.Search.BlogEndpoint),
		search.NewAlternateEngine(f, cfg.Search.AlternateEndpoint),
	).WithQualityThreshold(cfg.Search.QualityThreshold)

	monitor := monitoring.NewMonitor()
	processor := batch.NewProcessor(cfg.Batch.ToProcessorConfig(), monitor)
	merger := merge.New(cfg.Merge.ToMergeOptions())

	return &appEnv{
		Store:   st,
		Fetcher: f,
		Chain:   chain,
		Monitor: monitor,
		Runner:  session.NewRunner(st, chain, processor, merger),
	}, nil
}

func (e *appEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}
