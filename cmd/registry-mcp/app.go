package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/registry-mcp/browserprobe"
	"github.com/ggoodman/registry-mcp/cache"
	"github.com/ggoodman/registry-mcp/config"
	"github.com/ggoodman/registry-mcp/docindex"
	"github.com/ggoodman/registry-mcp/embedding"
	"github.com/ggoodman/registry-mcp/internal/httpx"
	"github.com/ggoodman/registry-mcp/oauth"
	"github.com/ggoodman/registry-mcp/registry"
	"github.com/ggoodman/registry-mcp/telemetry"
	"github.com/ggoodman/registry-mcp/tools"
	"github.com/ggoodman/registry-mcp/vector"
)

const telemetryShutdownTimeout = 5 * time.Second

// app holds the wired services for one process run.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	cache    *cache.Cache
	indexer  *docindex.Indexer
	registry *registry.Client
	prober   *browserprobe.Prober

	shutdownTelemetry telemetry.ShutdownFunc
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	log = log.With(slog.String("run_id", uuid.NewString()))

	shutdown, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, "registry-mcp", version, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, shutdownTelemetry: shutdown}

	client := httpx.NewClient(cfg.HTTPTimeout)

	store, err := cache.OpenStore(ctx, cfg.CacheURL, cfg.CacheToken, client)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	a.cache = cache.New(store, cache.WithKeyPrefix(cfg.CacheKeyPrefix), cache.WithLogger(log))
	if !a.cache.Enabled() {
		log.Info("app.cache.disabled")
	}

	var emb embedding.Embedder
	if e, err := embedding.NewOpenAI(cfg.Embedding(), client); err == nil {
		emb = e
	} else if !errors.Is(err, embedding.ErrNotConfigured) {
		a.close()
		return nil, err
	}
	var vs docindex.VectorStore
	if v, err := vector.NewClient(cfg.Vector(), client); err == nil {
		vs = v
	} else if !errors.Is(err, vector.ErrNotConfigured) {
		a.close()
		return nil, err
	}
	a.indexer = docindex.New(cfg.DocIndex(), emb, vs, docindex.WithLogger(log))

	regOpts := []registry.Option{
		registry.WithHTTPClient(client),
		registry.WithCache(a.cache),
		registry.WithLogger(log),
	}
	regCfg := cfg.Registry()
	if regCfg.Mode == registry.ModeAuthorized {
		tokens := oauth.NewManager(cfg.OAuth(), oauth.WithHTTPClient(client), oauth.WithLogger(log))
		if !tokens.Configured() {
			log.Warn("app.oauth.not_configured", slog.String("mode", string(regCfg.Mode)))
		}
		regOpts = append(regOpts, registry.WithTokenSource(tokens))
	}
	a.registry = registry.New(regCfg, regOpts...)

	a.prober = browserprobe.New(cfg.Browser(), browserprobe.WithLogger(log))
	return a, nil
}

func (a *app) deps() tools.Deps {
	return tools.Deps{
		Docs:     a.indexer,
		Registry: a.registry,
		Prober:   a.prober,
		Log:      a.log,
	}
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("app.cache.close_failed", slog.String("err", err.Error()))
		}
	}
	if a.shutdownTelemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := a.shutdownTelemetry(ctx); err != nil {
			a.log.Warn("app.telemetry.shutdown_failed", slog.String("err", err.Error()))
		}
	}
}
