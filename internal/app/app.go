// Package app wires stores, upstream clients and engines from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mention-lab/internal/assemble"
	s3blob "mention-lab/internal/blob/s3"
	rediscache "mention-lab/internal/cache/redis"
	"mention-lab/internal/config"
	"mention-lab/internal/domain"
	"mention-lab/internal/extract"
	"mention-lab/internal/marketdata"
	"mention-lab/internal/orchestrator"
	"mention-lab/internal/pricing"
	"mention-lab/internal/ratelimit"
	"mention-lab/internal/resolve"
	"mention-lab/internal/storage"
	chstore "mention-lab/internal/storage/clickhouse"
	"mention-lab/internal/storage/memory"
	"mention-lab/internal/storage/migrations"
	pgstore "mention-lab/internal/storage/postgres"
)

// Stores holds every storage implementation the engines use.
type Stores struct {
	Posts    storage.PostStore
	Mentions storage.MentionStore
	Issues   storage.UnresolvedIssueStore
	Metadata storage.TokenMetadataStore
	Candles  storage.CandleStore
	Cursor   storage.ScanCursorStore
}

// Hooks receive orchestrator events. Both are optional.
type Hooks struct {
	OnProgress func(orchestrator.Progress)
	OnItem     func(orchestrator.ItemEvent)
}

// App is a fully wired process.
type App struct {
	Config       *config.Config
	Stores       *Stores
	Orchestrator *orchestrator.Orchestrator

	// Health checks keyed by dependency name.
	Checks map[string]func(context.Context) error

	closers []func()
}

// Close releases every connection opened by Build, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Build connects to the configured backends and assembles the orchestrator.
// An empty Postgres DSN selects in-memory stores; an empty ClickHouse DSN
// selects the in-memory candle cache.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, hooks Hooks) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Checks: make(map[string]func(context.Context) error)}

	stores, err := a.buildStores(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Stores = stores

	gate := ratelimit.NewGate(ratelimit.Config{
		MinSpacing:  cfg.Gate.MinSpacing.Duration,
		BaseDelay:   cfg.Gate.BaseDelay.Duration,
		MaxDelay:    cfg.Gate.MaxDelay.Duration,
		Jitter:      cfg.Gate.Jitter.Duration,
		MaxAttempts: cfg.Gate.MaxAttempts,
	}, ratelimit.WithLogger(logger.Named("gate")))

	clientOpts := []marketdata.ClientOption{
		marketdata.WithGate(gate),
		marketdata.WithTimeout(cfg.MarketData.Timeout.Duration),
		marketdata.WithLogger(logger.Named("marketdata")),
	}
	var identity marketdata.IdentitySource = marketdata.NewDexScreener(cfg.MarketData.DexScreenerURL, clientOpts...)
	market := marketdata.NewGeckoTerminal(cfg.MarketData.GeckoTerminalURL, clientOpts...)

	var poolCache pricing.PoolCache
	if cfg.Redis.Enabled {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.Checks["redis"] = rc.Ping

		ttl := cfg.Redis.TTL.Duration
		identity = rediscache.NewCachedIdentity(rc, identity, ttl, logger.Named("identity_cache"))
		poolCache = rediscache.NewPoolCache(rc, ttl, logger.Named("pool_cache"))
	}

	var archiver pricing.SeriesArchiver
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Checks["s3"] = sc.Health
		archiver = s3blob.NewSeriesArchiver(sc, cfg.S3.Prefix)
	}

	steps, err := PriceSteps(cfg.Pricing.Steps)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator = orchestrator.New(orchestrator.Options{
		Posts:    stores.Posts,
		Mentions: stores.Mentions,
		Cursor:   stores.Cursor,

		Extractor: extract.New(extract.Options{
			MajorTickers: cfg.Extract.MajorTickers,
			MajorNames:   cfg.Extract.MajorNames,
		}),
		Resolver: resolve.New(resolve.Options{
			Identity:            identity,
			Metadata:            stores.Metadata,
			Issues:              stores.Issues,
			WeakTickerThreshold: cfg.Resolver.WeakTickerThreshold,
			CanonicalizePools:   cfg.Resolver.CanonicalizePools,
			Logger:              logger.Named("resolve"),
		}),
		Planner: assemble.New(stores.Mentions, logger.Named("assemble")),
		Prices: pricing.NewPriceResolver(pricing.PriceResolverOptions{
			Market:       market,
			Posts:        stores.Posts,
			Mentions:     stores.Mentions,
			PoolCache:    poolCache,
			Steps:        steps,
			TopPools:     cfg.Pricing.TopPools,
			GraceSeconds: cfg.Pricing.GraceSeconds,
			Logger:       logger.Named("price_at"),
		}),
		MaxSince: pricing.NewMaxSinceEngine(pricing.MaxSinceOptions{
			Market:         market,
			Mentions:       stores.Mentions,
			Candles:        stores.Candles,
			PoolCache:      poolCache,
			Archiver:       archiver,
			Mode:           cfg.Pricing.MaxSinceMode,
			PatchAggregate: cfg.Pricing.PatchAggregate,
			MaxPages:       cfg.Pricing.MaxPages,
			MinVolume:      cfg.Pricing.MinVolume,
			Logger:         logger.Named("max_since"),
		}),

		Workers:          cfg.Orchestrator.Workers,
		TokenParallelism: cfg.Orchestrator.TokenParallelism,
		ProgressInterval: cfg.Orchestrator.ProgressInterval.Duration,
		GraceSeconds:     cfg.Pricing.GraceSeconds,
		ScanLookback:     cfg.Server.ScanLookback.Duration,
		BackfillLimit:    cfg.Orchestrator.BatchSize,

		OnProgress: hooks.OnProgress,
		OnItem:     hooks.OnItem,
		Logger:     logger.Named("orchestrator"),
	})

	return a, nil
}

func (a *App) buildStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	var s Stores

	if cfg.Postgres.DSN == "" {
		logger.Warn("postgres dsn not set, using in-memory stores")
		posts := memory.NewPostStore()
		s.Posts = posts
		s.Mentions = memory.NewMentionStore(posts)
		s.Issues = memory.NewUnresolvedIssueStore()
		s.Metadata = memory.NewTokenMetadataStore()
		s.Cursor = memory.NewScanCursorStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		a.Checks["postgres"] = pool.Ping

		if cfg.Postgres.RunMigrations {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				return nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		s.Posts = pgstore.NewPostStore(pool)
		s.Mentions = pgstore.NewMentionStore(pool)
		s.Issues = pgstore.NewUnresolvedIssueStore(pool)
		s.Metadata = pgstore.NewTokenMetadataStore(pool)
		s.Cursor = pgstore.NewScanCursorStore(pool)
	}

	if cfg.ClickHouse.DSN == "" {
		s.Candles = memory.NewCandleStore()
		return &s, nil
	}

	var (
		conn *chstore.Conn
		err  error
	)
	if cfg.ClickHouse.RunMigrations {
		conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
	} else {
		conn, err = chstore.NewConn(ctx, cfg.ClickHouse.DSN)
	}
	if err != nil {
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	a.closers = append(a.closers, func() { _ = conn.Close() })
	a.Checks["clickhouse"] = conn.Ping
	s.Candles = chstore.NewCandleStore(conn)

	return &s, nil
}

// PriceSteps converts configured steps into the price-at search ladder.
// An empty list yields nil so the resolver uses its defaults.
func PriceSteps(in []config.PriceStep) ([]pricing.Step, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]pricing.Step, 0, len(in))
	for i, s := range in {
		tf := domain.Timeframe(s.Timeframe)
		switch tf {
		case domain.TimeframeDay, domain.TimeframeHour, domain.TimeframeMinute:
		default:
			return nil, fmt.Errorf("pricing step %d: unknown timeframe %q", i, s.Timeframe)
		}
		if s.Tolerance.Duration <= 0 {
			return nil, fmt.Errorf("pricing step %d: tolerance must be positive", i)
		}
		agg := s.Aggregate
		if agg <= 0 {
			agg = 1
		}
		out = append(out, pricing.Step{Timeframe: tf, Aggregate: agg, Tolerance: s.Tolerance.Duration})
	}
	return out, nil
}

// Ping runs every health check with a shared timeout.
func (a *App) Ping(ctx context.Context, timeout time.Duration) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out := make(map[string]string, len(a.Checks))
	for name, check := range a.Checks {
		if err := check(ctx); err != nil {
			out[name] = err.Error()
			continue
		}
		out[name] = "ok"
	}
	return out
}
