// Package keeperbuilder wires the pipeline from configuration: league
// directory, ledger, ingest cache, metrics, and the optional card
// snapshotter. Postgres and Redis are used when configured and fall
// back to in-process implementations when not.
package keeperbuilder

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mhutchins/gridkeeper/internal/config"
	"github.com/mhutchins/gridkeeper/internal/extract"
	"github.com/mhutchins/gridkeeper/internal/identity"
	"github.com/mhutchins/gridkeeper/internal/ingest"
	"github.com/mhutchins/gridkeeper/internal/leaguedir"
	"github.com/mhutchins/gridkeeper/internal/ledger"
	"github.com/mhutchins/gridkeeper/internal/metrics"
	"github.com/mhutchins/gridkeeper/internal/pipeline"
	"github.com/mhutchins/gridkeeper/internal/sharecard"
)

type Deps struct {
	Directory *leaguedir.Directory
	Resolver  *identity.Resolver
	Store     ledger.Store
	Cache     ingest.Cache
	Metrics   *metrics.Manager
	Pipeline  *pipeline.Pipeline
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := leaguedir.Load(cfg.LeagueFile)
	if err != nil {
		return nil, fmt.Errorf("load league directory: %w", err)
	}
	resolver := identity.New(dir)
	logger.Info("league directory loaded",
		zap.String("file", cfg.LeagueFile),
		zap.Int("leagues", dir.Len()))

	var store ledger.Store
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		store, err = ledger.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open ledger: %w", err)
		}
	} else {
		logger.Warn("database_url not set, scores are held in process memory")
		store = ledger.NewMemory()
	}

	var cache ingest.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err = ingest.NewRedisCache(ctx, cfg.RedisURL, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("init ingest cache: %w", err)
		}
	} else {
		logger.Warn("redis_url not set, seen fragments and cursors reset on restart")
		cache = ingest.NewMemory(0)
	}

	var exOpts []extract.Option
	if cfg.MaxGameNumber > 0 {
		exOpts = append(exOpts, extract.WithMaxGameNumber(cfg.MaxGameNumber))
	}
	if cfg.GridWindowBytes > 0 {
		exOpts = append(exOpts, extract.WithGridWindow(cfg.GridWindowBytes))
	}

	m := metrics.New()
	pipe, err := pipeline.New(extract.New(exOpts...), resolver, store, cache, m, logger)
	if err != nil {
		store.Close()
		cache.Close()
		return nil, err
	}

	if strings.TrimSpace(cfg.SnapshotDir) != "" {
		snap, serr := sharecard.NewSnapshotter(cfg.SnapshotDir, sharecard.NewTileRenderer(), logger)
		if serr != nil {
			store.Close()
			cache.Close()
			return nil, fmt.Errorf("init snapshotter: %w", serr)
		}
		pipe.SetSnapshotter(snap)
	}

	return &Deps{
		Directory: dir,
		Resolver:  resolver,
		Store:     store,
		Cache:     cache,
		Metrics:   m,
		Pipeline:  pipe,
	}, nil
}
