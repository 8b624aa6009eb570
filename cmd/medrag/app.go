package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/config"
	"github.com/xxxsen/medrag/internal/db"
	"github.com/xxxsen/medrag/internal/embedcache"
	"github.com/xxxsen/medrag/internal/intent"
	"github.com/xxxsen/medrag/internal/job"
	"github.com/xxxsen/medrag/internal/patterns"
	"github.com/xxxsen/medrag/internal/rag"
	"github.com/xxxsen/medrag/internal/repo"
	"github.com/xxxsen/medrag/internal/safety"
	"github.com/xxxsen/medrag/internal/service"
	"github.com/xxxsen/medrag/internal/vectorindex"
)

type app struct {
	svc     *service.AssistantService
	janitor job.CacheJanitor
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logutil.GetLogger(context.Background()).Warn("close resource failed", zap.Error(err))
		}
	}
}

func needsDatabase(cfg *config.Config) bool {
	return cfg.EmbedCache.Store == "postgres" || cfg.VectorIndex.Type == "pgvector"
}

func buildApp(cfg *config.Config) (*app, error) {
	a := &app{}
	set, err := loadPatterns(cfg.PatternsFile)
	if err != nil {
		return nil, err
	}

	var sqlDB *sql.DB
	if needsDatabase(cfg) {
		sqlDB, err = db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		a.closers = append(a.closers, sqlDB)
		if err := db.ApplyMigrations(sqlDB); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	embedders, err := buildEmbedder(cfg, sqlDB)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.janitor = embedders.janitor

	index, err := vectorindex.New(cfg.VectorIndex.Type, vectorindex.FactoryArgs{Data: cfg.VectorIndex.Data, DB: sqlDB})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init vector index: %w", err)
	}
	if c, ok := index.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	validator := safety.NewValidator(set,
		safety.WithMaxInputChars(cfg.Safety.MaxInputChars),
		safety.WithMaxOutputChars(cfg.Safety.MaxOutputChars),
	)
	classifier := intent.NewClassifier(set, intent.NewCorpus(embedders.corpus, set.IntentPhrases), embedders.query,
		intent.WithSemanticThreshold(cfg.Intent.SemanticThreshold),
		intent.WithMaxGreetingChars(cfg.Intent.MaxGreetingChars),
	)
	retriever := rag.NewRetriever(embedders.query, index,
		rag.WithFAQSource(cfg.Retrieval.FAQSource),
		rag.WithCandidates(cfg.Retrieval.CandidateMultiplier, cfg.Retrieval.MinCandidates),
	)
	builder := rag.NewContextBuilder(set, retriever, cfg.Retrieval.FAQSource)
	pipeline := rag.NewPipeline(retriever, builder, rag.PipelineConfig{
		TopK:      cfg.Retrieval.TopK,
		CharLimit: cfg.Retrieval.CharLimit,
		MaxDocs:   cfg.Retrieval.MaxDocs,
	})
	a.svc = service.NewAssistantService(validator, classifier, pipeline,
		time.Duration(cfg.AI.Timeout)*time.Second,
		time.Duration(cfg.Retrieval.Timeout)*time.Second,
	)
	return a, nil
}

func loadPatterns(path string) (*patterns.Set, error) {
	if path == "" {
		return patterns.Default()
	}
	set, err := patterns.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load patterns: %w", err)
	}
	return set, nil
}

// embedderStack holds the two views of the embedding chain. The intent corpus
// is embedded once through the store tier so its phrases never occupy lru
// slots meant for query traffic.
type embedderStack struct {
	query   ai.IEmbedder
	corpus  ai.IEmbedder
	janitor job.CacheJanitor
}

// buildEmbedder stacks the provider group under the persistent store tier and
// then the in-memory lru tier.
func buildEmbedder(cfg *config.Config, sqlDB *sql.DB) (*embedderStack, error) {
	timeout := time.Duration(cfg.AI.Timeout) * time.Second
	entries := make([]ai.EmbedderEntry, 0, len(cfg.AI.Providers))
	for _, item := range cfg.AI.Providers {
		data := item.Data
		if data == nil {
			data = map[string]interface{}{}
		}
		provider, err := ai.NewEmbedProvider(item.Provider, data)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", item.Provider, err)
		}
		name := item.Name
		if name == "" {
			name = item.Provider
		}
		entries = append(entries, ai.EmbedderEntry{Name: name, Embedder: ai.NewEmbedder(provider, item.Model, timeout)})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if embedder == nil {
		return nil, fmt.Errorf("no embed provider configured")
	}

	var janitor job.CacheJanitor
	switch cfg.EmbedCache.Store {
	case "file":
		store, err := embedcache.NewFileStore(cfg.EmbedCache.Dir)
		if err != nil {
			return nil, fmt.Errorf("init embedding file cache: %w", err)
		}
		embedder = embedcache.WrapStoreCacheToEmbedder(embedder, store)
		janitor = store
	case "postgres":
		store := repo.NewEmbeddingCacheRepo(sqlDB)
		embedder = embedcache.WrapStoreCacheToEmbedder(embedder, store)
		janitor = store
	}
	return &embedderStack{
		query:   embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LruSize),
		corpus:  embedder,
		janitor: janitor,
	}, nil
}
