// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/memory-palace/core/config"
	"github.com/memory-palace/core/db"
	"github.com/memory-palace/core/graph"
	"github.com/memory-palace/core/handoff"
	"github.com/memory-palace/core/memory"
	"github.com/memory-palace/core/modelserver"
	"github.com/memory-palace/core/observability/logging"
	"github.com/memory-palace/core/observability/metrics"
	mperrors "github.com/memory-palace/core/pkg/errors"
	"github.com/memory-palace/core/ratelimit"
	"github.com/memory-palace/core/tools"
)

// defaultEmbeddingDimension is used when ModelServerConfig.EmbeddingDimension
// is left at its zero value, matching nomic-embed-text's output width.
const defaultEmbeddingDimension = 768

// deps bundles the domain layer every subcommand is built against.
type deps struct {
	Backend    db.Backend
	Redis      *redis.Client
	Client     *modelserver.Client
	Graph      *graph.Graph
	Store      *memory.Store
	Handoff    *handoff.Bus
	Dispatcher *tools.Dispatcher
	Collector  *metrics.PrometheusCollector
}

func (d *deps) close() error {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	return d.Backend.Close()
}

func buildDeps(ctx context.Context, cfg *config.Config, log logging.Logger) (*deps, error) {
	return buildDepsAllowingDimensionMismatch(ctx, cfg, log, false)
}

// buildDepsAllowingDimensionMismatch is buildDeps with the bootstrap
// dimension guard relaxed, for the one caller (reembed) that is
// expected to hit ErrDimensionMismatch and intends to resolve it
// immediately via Store.Reembed rather than treat it as fatal.
func buildDepsAllowingDimensionMismatch(ctx context.Context, cfg *config.Config, log logging.Logger, allowMismatch bool) (*deps, error) {
	backend, err := openBackend(ctx, cfg, log, allowMismatch)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}

	collector := metrics.NewPrometheusCollector()
	storeMetrics := metrics.NewStoreMetrics(collector)

	client := modelserver.NewClient(modelserver.ClientConfig{
		BaseURL: cfg.ModelServer.OllamaURL,
		Metrics: storeMetrics,
		Log:     log,
	})

	redisClient, err := openRedis(cfg)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open redis: %w", err)
	}

	var backfillLimiter memory.RateLimiter
	if redisClient != nil && cfg.Redis.RateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewDistributed(redisClient, ratelimit.Config{
			KeyPrefix: "memory-palace:embed:",
			Limit:     cfg.Redis.RateLimitPerMinute,
			Window:    time.Minute,
		})
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("build embedding rate limiter: %w", err)
		}
		backfillLimiter = limiter
	}

	g := graph.New(backend, client, storeMetrics, log, cfg.AutoLink)
	store := memory.New(memory.Config{
		Backend:          backend,
		Client:           client,
		Graph:            g,
		Metrics:          storeMetrics,
		Log:              log,
		AutoLinkDefault:  cfg.AutoLink.Enabled,
		SynthesisEnabled: cfg.Synthesis.Enabled,
		BackfillLimiter:  backfillLimiter,
	})
	bus := handoff.New(handoff.Config{
		Backend:     backend,
		Redis:       redisClient,
		InstanceIDs: cfg.Instances.IDs,
		Metrics:     storeMetrics,
		Log:         log,
	})

	return &deps{
		Backend:    backend,
		Redis:      redisClient,
		Client:     client,
		Graph:      g,
		Store:      store,
		Handoff:    bus,
		Dispatcher: tools.New(store, g, bus, client),
		Collector:  collector,
	}, nil
}

// openRedis constructs the shared Redis client used by the handoff
// bus's pub/sub fan-out and the backfill rate limiter, or returns nil
// when Redis is not configured.
func openRedis(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func openBackend(ctx context.Context, cfg *config.Config, log logging.Logger, allowDimensionMismatch bool) (db.Backend, error) {
	dim := cfg.ModelServer.EmbeddingDimension
	if dim == 0 {
		dim = defaultEmbeddingDimension
	}

	if cfg.Database.Type == "sqlite" {
		path := cfg.Database.URL
		if path == "" {
			path = filepath.Join(cfg.DataDir, "memory-palace.db")
		}
		backend, err := db.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		if err := backend.Bootstrap(ctx, dim, log); err != nil {
			if !allowDimensionMismatch || !mperrors.Is(err, mperrors.ErrDimensionMismatch) {
				backend.Close()
				return nil, err
			}
		}
		return backend, nil
	}

	poolCfg := db.DefaultPoolConfig()
	poolCfg.URL = cfg.Database.URL
	backend, err := db.Open(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := backend.Bootstrap(ctx, dim, log); err != nil {
		if !allowDimensionMismatch || !mperrors.Is(err, mperrors.ErrDimensionMismatch) {
			backend.Close()
			return nil, err
		}
	}
	return backend, nil
}
