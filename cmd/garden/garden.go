package main

import (
	"context"
	"fmt"

	"codegarden/internal/audit"
	"codegarden/internal/coherence"
	"codegarden/internal/config"
	"codegarden/internal/embedding"
	"codegarden/internal/growth"
	"codegarden/internal/recycler"
	"codegarden/internal/reflection"
	"codegarden/internal/store"

	"go.uber.org/zap"
)

// garden bundles the wired engine stack behind a single Close.
type garden struct {
	cfg      *config.Config
	store    *store.SQLiteStore
	auditLog *audit.Log
	oracle   coherence.Oracle
	tracker  *coherence.Tracker
	recycler *recycler.Recycler
	growth   *growth.Engine

	// nil when no embedding provider is configured
	searcher *embedding.Searcher
}

// openGarden wires the pattern store, audit log, oracle, tracker,
// reflector, recycler and growth engine from the workspace config. The
// store and the audit log share one database file.
func openGarden(ws string, cfg *config.Config) (*garden, error) {
	dbPath := gardenPath(ws, cfg.Store.DatabasePath)

	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening pattern store: %w", err)
	}
	auditLog, err := audit.Open(dbPath)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	oracle := coherence.NewHeuristicOracle()
	tracker := coherence.NewTracker(trackerConfig(cfg))
	reflector := reflection.New(oracle)
	rec := recycler.New(st, oracle, tracker, reflector, auditLog, recyclerConfig(cfg))
	eng := growth.New(st, tracker, rec, reflector, nil, nil)

	g := &garden{
		cfg:      cfg,
		store:    st,
		auditLog: auditLog,
		oracle:   oracle,
		tracker:  tracker,
		recycler: rec,
		growth:   eng,
	}

	if cfg.Embedding.Provider != "" {
		embedder, err := embedding.NewEngine(embeddingConfig(cfg))
		if err != nil {
			// Growth must not die because search cannot start.
			logger.Warn("Embedding engine unavailable, search disabled", zap.Error(err))
		} else {
			g.searcher = embedding.NewSearcher(embedder, st)
		}
	}
	return g, nil
}

func (g *garden) Close() {
	if g.auditLog != nil {
		if err := g.auditLog.Close(); err != nil {
			logger.Warn("Closing audit log", zap.Error(err))
		}
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			logger.Warn("Closing pattern store", zap.Error(err))
		}
	}
}

// restoreBacklog replays captured failures from the audit log into the
// recycler. Replay failure degrades to an empty backlog with a warning;
// the library itself is untouched either way.
func restoreBacklog(ctx context.Context, g *garden) {
	n, err := g.recycler.RestoreBacklog(ctx)
	if err != nil {
		logger.Warn("Backlog restore failed, starting with an empty backlog", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("Restored pending captures from audit log", zap.Int("count", n))
	}
}

// backfillEmbeddings fills vectors for patterns that lack one. Best
// effort: the growth run already finished, search quality just lags
// until a provider is reachable again.
func backfillEmbeddings(ctx context.Context, g *garden) {
	if g.searcher == nil {
		return
	}
	n, err := g.searcher.Backfill(ctx)
	if err != nil {
		logger.Warn("Embedding backfill failed", zap.Error(err))
		return
	}
	if n > 0 {
		fmt.Printf("Embedded %d new pattern(s)\n", n)
	}
}

func trackerConfig(cfg *config.Config) coherence.TrackerConfig {
	return coherence.TrackerConfig{
		Beta:                cfg.Evolution.Beta,
		GammaBase:           cfg.Evolution.GammaBase,
		AcceptanceThreshold: cfg.Evolution.AcceptanceThreshold,
	}
}

func recyclerConfig(cfg *config.Config) recycler.Config {
	return recycler.Config{
		MaxHealAttempts:          cfg.Evolution.MaxHealAttempts,
		AcceptanceThreshold:      cfg.Evolution.AcceptanceThreshold,
		VoidScaffoldThreshold:    cfg.Evolution.VoidScaffoldThreshold,
		VoidScaffoldMinCoherency: cfg.Evolution.VoidScaffoldMinCoherency,
		MaxPendingPerCycle:       cfg.Evolution.MaxPendingPerCycle,
		HealMaxLoops:             cfg.Evolution.HealMaxLoops,
		HealTargetCoherence:      cfg.Evolution.HealTargetCoherence,
		DropThreshold:            cfg.Evolution.DropThreshold,
	}
}

func growthOptions(cfg *config.Config) growth.Options {
	return growth.Options{
		Depth:                 cfg.Evolution.Depth,
		MaxVariantsPerPattern: cfg.Evolution.MaxVariantsPerPattern,
		BatchMultiplier:       cfg.Evolution.BatchMultiplier,
		TargetLanguages:       cfg.Evolution.TargetLanguages,
		Parallelism:           cfg.Evolution.Parallelism,
		ApproachSwapLoops:     cfg.Evolution.ApproachSwapLoops,
		ApproachSwapTarget:    cfg.Evolution.ApproachSwapTarget,
		RefineLoops:           cfg.Evolution.RefineLoops,
		RefineTarget:          cfg.Evolution.RefineTarget,
	}
}

func embeddingConfig(cfg *config.Config) embedding.Config {
	return embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	}
}
