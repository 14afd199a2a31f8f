// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/evidence-engine/internal/registry"
	"github.com/pdiddy/evidence-engine/internal/secrets"
	"github.com/pdiddy/evidence-engine/internal/source"
	"github.com/pdiddy/evidence-engine/internal/store"
	"github.com/pdiddy/evidence-engine/internal/telemetry"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

// Runtime is an engine wired to its SQLite store, entity registry, and
// source adapters.
type Runtime struct {
	*Engine
	Store    *store.Store
	Registry *registry.Registry
}

// Open opens the store under cfg.Store, loads the entity registry, and wires
// the structured records and document adapters over the store. The live
// signal adapter is added when cfg.Signals.FeedURL is set. Every adapter is
// wrapped in a response cache of cfg.Retrieval.CacheTTL.
func Open(ctx context.Context, cfg types.EngineConfig, sec secrets.Secrets, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}

	reg, err := loadRegistry(ctx, cfg.Planner, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	adapters := []source.Adapter{
		&source.RecordsAdapter{Store: st},
		&source.DocumentAdapter{Index: st},
	}
	if cfg.Signals.FeedURL != "" {
		adapters = append(adapters, source.NewSignalAdapter(cfg.Signals, sec.Get(secrets.LiveSignalAPIKey)))
	} else {
		log.Info("live signal feed not configured; planning without it")
	}
	for i, a := range adapters {
		adapters[i] = source.Cached(a, cfg.Retrieval.CacheTTL)
	}

	eng := New(cfg, Deps{
		Registry: reg,
		Sources:  source.NewSet(adapters...),
		Contexts: st,
		Telemetry: telemetry.Multi{
			telemetry.LogSink{Log: log.Named("telemetry")},
			store.NewAuditSink(st, log.Named("audit")),
		},
		Log: log,
	})
	log.Debug("engine ready",
		zap.String("db", st.Path()),
		zap.Int("entities", reg.Len()),
		zap.Int("sources", len(adapters)))
	return &Runtime{Engine: eng, Store: st, Registry: reg}, nil
}

// Close releases the store.
func (r *Runtime) Close() error {
	return r.Store.Close()
}

// ReloadRegistry refreshes the entity registry from its source.
func (r *Runtime) ReloadRegistry(ctx context.Context, cfg types.PlannerConfig) error {
	reg, err := loadRegistry(ctx, cfg, r.Store)
	if err != nil {
		return err
	}
	// Planner holds r.Registry; swap its index in place.
	r.Registry.Reload(reg.Entities())
	return nil
}

func loadRegistry(ctx context.Context, cfg types.PlannerConfig, st *store.Store) (*registry.Registry, error) {
	if cfg.RegistryPath != "" {
		reg, err := registry.LoadFile(cfg.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("loading registry file: %w", err)
		}
		return reg, nil
	}
	return registry.LoadStore(ctx, st)
}
