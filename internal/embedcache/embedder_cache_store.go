package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/medrag/internal/ai"
	"github.com/xxxsen/medrag/internal/model"
)

// IStore is the persistent tier. Entries are permanent and Save is an
// idempotent upsert, so concurrent writers of one key need no locking.
type IStore interface {
	Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapStoreCacheToEmbedder(e ai.IEmbedder, store IStore) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &storeEmbedder{next: e, store: store}
}

type storeEmbedder struct {
	next  ai.IEmbedder
	store IStore
}

func (d *storeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	out := make([][]float32, len(texts))
	var missTexts []string
	missIdx := make(map[string][]int)
	for i, text := range texts {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), text)
		values, ok, err := d.store.Get(ctx, modelName, contentHash)
		if err != nil {
			logger.Warn("read embedding cache failed", zap.Error(err))
		}
		if ok {
			logger.Debug("embedding cache hit (store)")
			out[i] = values
			continue
		}
		if _, seen := missIdx[contentHash]; !seen {
			missTexts = append(missTexts, text)
		}
		missIdx[contentHash] = append(missIdx[contentHash], i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}
	res, err := d.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	for i, text := range missTexts {
		_, contentHash, modelName := buildCacheKey(d.next.ModelName(), text)
		if err := d.store.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			ContentHash: contentHash,
			Embedding:   res[i],
			Ctime:       now,
		}); err != nil {
			logger.Warn("failed to cache embedding", zap.Error(err))
		}
		for _, idx := range missIdx[contentHash] {
			out[idx] = res[i]
		}
	}
	return out, nil
}

func (d *storeEmbedder) ModelName() string {
	return d.next.ModelName()
}
